package sources

import (
	"encoding/json"

	"github.com/JustinTDCT/CineSync/internal/catalog"
	"github.com/JustinTDCT/CineSync/internal/models"
)

// Ophim normalizes payloads from the ophim catalog. It reads both the
// season-grouped episode layout and the server-grouped one the public
// API returns.
type Ophim struct{}

func (Ophim) Supports(code string) bool { return code == "ophim" }

func (Ophim) Normalize(payload json.RawMessage, item *models.SourceItem) *catalog.Movie {
	root := decodePayload(payload)
	movie := movieObject(root)

	out := baseMovie(movie, item, episodeList(root, movie))
	out.OtherTitles = append(stringList(movie["aliases"]), stringList(movie["alternative_names"])...)
	out.IMDBID = externalID(movie["imdb_id"], movie["imdb"])
	out.TMDBID = externalID(movie["tmdb_id"], movie["tmdb"])
	out.Countries = taxonomies(movie["country"], func(m map[string]any) string {
		return str(m["code"])
	})
	out.Tags = taxonomies(movie["tags"], nil)
	out.People = catalog.People{
		Actors:    people(movie["actors"], movie["actor"]),
		Directors: people(movie["directors"], movie["director"]),
	}
	return out
}
