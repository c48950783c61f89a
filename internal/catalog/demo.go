package catalog

import "movie-recommender/internal/models"

var demoMovies = []models.MovieRecord{
	{ID: 862, Title: "Toy Story", Overview: "A cowboy doll is profoundly threatened and jealous when a new spaceman figure supplants him as top toy in a boy's room.", Genres: []string{"Animation", "Comedy", "Family"}, VoteAverage: 7.7, VoteCount: 5415, PosterPath: "/rhIRbceoE9lR4veEXuwCC2wARtG.jpg"},
	{ID: 8844, Title: "Jumanji", Overview: "When siblings Judy and Peter discover an enchanted board game that opens the door to a magical world, they unwittingly invite Alan -- an adult who's been trapped inside the game for 26 years.", Genres: []string{"Adventure", "Fantasy", "Family"}, VoteAverage: 6.9, VoteCount: 2413, PosterPath: "/vgpXmVaVyUL920SAYtoH9B5xNsE.jpg"},
	{ID: 550, Title: "Fight Club", Overview: "An insomniac office worker looking for a way to change his life crosses paths with a devil-may-care soap maker.", Genres: []string{"Drama"}, VoteAverage: 8.4, VoteCount: 9678, PosterPath: "/pB8BM7pdSp6B6Ih7QZ4DrQ3PmJK.jpg"},
	{ID: 13, Title: "Forrest Gump", Overview: "A man with a low IQ has accomplished great things in his life and been present during significant historic events.", Genres: []string{"Comedy", "Drama", "Romance"}, VoteAverage: 8.5, VoteCount: 8147, PosterPath: "/arw2vcBveWOVZr6pxd9XTd1TdQa.jpg"},
	{ID: 603, Title: "The Matrix", Overview: "Set in the 22nd century, The Matrix tells the story of a computer hacker who joins a group of underground insurgents fighting the vast and powerful computers who now rule the earth.", Genres: []string{"Action", "Science Fiction"}, VoteAverage: 8.1, VoteCount: 9079, PosterPath: "/f89U3ADr1oiB1s9GkdPOEpXUk5H.jpg"},
	{ID: 157336, Title: "Interstellar", Overview: "The adventures of a group of explorers who make use of a newly discovered wormhole to surpass the limitations on human space travel.", Genres: []string{"Adventure", "Drama", "Science Fiction"}, VoteAverage: 8.3, VoteCount: 11187, PosterPath: "/gEU2QniE6E77NI6lCU6MxlNBvIx.jpg"},
	{ID: 27205, Title: "Inception", Overview: "Cobb, a skilled thief who commits corporate espionage by infiltrating the subconscious of his targets is offered a chance to regain his old life.", Genres: []string{"Action", "Science Fiction", "Adventure"}, VoteAverage: 8.3, VoteCount: 13752, PosterPath: "/9gk7adHYeDvHkCSEqAvQNLV5Uge.jpg"},
	{ID: 155, Title: "The Dark Knight", Overview: "Batman raises the stakes in his war on crime. With the help of Lt. Jim Gordon and District Attorney Harvey Dent, Batman sets out to dismantle the remaining criminal organizations.", Genres: []string{"Drama", "Action", "Crime", "Thriller"}, VoteAverage: 8.5, VoteCount: 12269, PosterPath: "/qJ2tW6WMUDux911r6m7haRef0WH.jpg"},
	{ID: 680, Title: "Pulp Fiction", Overview: "A burger-loving hit man, his philosophical partner, a drug-addled gangster's moll and a washed-up boxer converge in this sprawling, comedic crime caper.", Genres: []string{"Thriller", "Crime"}, VoteAverage: 8.5, VoteCount: 8428, PosterPath: "/d5iIlFn5s0ImszYzBPb8JPIfbXD.jpg"},
	{ID: 238, Title: "The Godfather", Overview: "Spanning the years 1945 to 1955, a chronicle of the fictional Italian-American Corleone crime family.", Genres: []string{"Drama", "Crime"}, VoteAverage: 8.7, VoteCount: 6024, PosterPath: "/3bhkrj58Vtu7enYsRolD1fZdja1.jpg"},
}

// Demo returns the fixed ten-movie catalog served when no dataset or
// recommendation service is available.
func Demo() *Snapshot {
	movies := make([]models.MovieRecord, len(demoMovies))
	for i, m := range demoMovies {
		m.Genres = append([]string(nil), m.Genres...)
		m.Keywords = []string{}
		m.Actors = []string{}
		movies[i] = m
	}
	s := New(movies)
	s.demo = true
	return s
}
