package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	apperrors "movie-recommender/internal/common/errors"
)

// Property is one declared item or user property.
type Property struct {
	Name string
	Type string
}

// ItemProperties mirrors models.ItemValues.
var ItemProperties = []Property{
	{"title", "string"},
	{"overview", "string"},
	{"genres", "set"},
	{"keywords", "set"},
	{"director", "string"},
	{"actors", "set"},
	{"release_date", "string"},
	{"vote_average", "double"},
	{"vote_count", "int"},
	{"runtime", "int"},
	{"poster_path", "string"},
}

// UserProperties mirrors models.UserValues.
var UserProperties = []Property{
	{"preferred_genres", "set"},
	{"preferred_directors", "set"},
	{"registration_date", "timestamp"},
}

// DeclareItemSchema declares every item property. Declaring a property
// that already exists succeeds; any other failure is returned.
func (g *Gateway) DeclareItemSchema(ctx context.Context) error {
	return g.declare(ctx, "/items/properties/", ItemProperties)
}

// DeclareUserSchema declares every user property.
func (g *Gateway) DeclareUserSchema(ctx context.Context) error {
	return g.declare(ctx, "/users/properties/", UserProperties)
}

func (g *Gateway) declare(ctx context.Context, prefix string, props []Property) error {
	if !g.configured {
		return g.unconfigured()
	}
	for _, p := range props {
		q := url.Values{"type": {p.Type}}
		body, status, err := g.call(ctx, "declare_property", http.MethodPut, prefix+url.PathEscape(p.Name), q, nil)
		if err == nil {
			g.logger.Debug("property declared", map[string]interface{}{"property": p.Name, "type": p.Type})
			continue
		}
		if alreadyExists(status, body) {
			g.logger.Debug("property already exists", map[string]interface{}{"property": p.Name})
			continue
		}
		if apperrors.IsFatal(err) {
			return err
		}
		return apperrors.NewSchemaSetupFailedError(p.Name, err)
	}
	g.logger.Info("schema declared", map[string]interface{}{"scope": strings.Trim(prefix, "/"), "properties": len(props)})
	return nil
}

func alreadyExists(status int, body []byte) bool {
	return status == http.StatusConflict || strings.Contains(strings.ToLower(string(body)), "already exists")
}
