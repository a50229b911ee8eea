package sources

import (
	"context"
	"strings"

	"github.com/JustinTDCT/CineSync/internal/models"
)

// DefaultPeoplePath is the credits endpoint both catalogs expose.
const DefaultPeoplePath = "/v1/api/phim/{slug}/peoples"

// Credit is one entry of a catalog's credits list.
type Credit struct {
	TMDBID     string
	Name       string
	Character  string
	Department string
	AvatarURL  string
}

// Role maps the credit's department to a role type.
func (c Credit) Role() models.RoleType {
	switch strings.ToLower(strings.TrimSpace(c.Department)) {
	case "acting":
		return models.RoleActor
	case "directing":
		return models.RoleDirector
	case "writing":
		return models.RoleWriter
	case "production":
		return models.RoleProducer
	default:
		return models.RoleOther
	}
}

// People fetches the credits list for a title slug. Catalogs without a
// people path return nil.
func (c *Crawler) People(ctx context.Context, slug string) ([]Credit, error) {
	if c.cfg.PeoplePath == "" {
		return nil, nil
	}
	u, err := BuildURL(c.cfg.BaseURL, c.cfg.PeoplePath, map[string]string{"slug": slug})
	if err != nil {
		return nil, err
	}
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	root := decodePayload(body)
	raw := list(path(root, "data", "peoples"))
	credits := make([]Credit, 0, len(raw))
	for _, e := range raw {
		m := obj(e)
		name := firstStr(m["name"], m["original_name"])
		if name == "" {
			continue
		}
		credits = append(credits, Credit{
			TMDBID:     str(m["tmdb_people_id"]),
			Name:       name,
			Character:  str(m["character"]),
			Department: str(m["known_for_department"]),
			AvatarURL:  str(m["profile_path"]),
		})
	}
	return credits, nil
}
