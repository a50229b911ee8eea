package sources

import (
	"encoding/json"

	"github.com/JustinTDCT/CineSync/internal/catalog"
	"github.com/JustinTDCT/CineSync/internal/models"
)

// maxCountryCode bounds the slug kkphim uses as a country code.
const maxCountryCode = 10

// KKPhim normalizes payloads from the kkphim catalog. External ids are
// nested objects ({imdb: {id}}, {tmdb: {id}}), country slugs serve as codes
// and every episode lands in season 1.
type KKPhim struct{}

func (KKPhim) Supports(code string) bool { return code == "kkphim" }

func (KKPhim) Normalize(payload json.RawMessage, item *models.SourceItem) *catalog.Movie {
	root := decodePayload(payload)
	movie := movieObject(root)

	out := baseMovie(movie, item, episodeList(root, movie))
	out.OtherTitles = stringList(movie["other_titles"])
	out.IMDBID = externalID(movie["imdb"])
	out.TMDBID = externalID(movie["tmdb"])
	out.Countries = taxonomies(movie["country"], func(m map[string]any) string {
		code := firstStr(m["slug"], m["code"])
		if len(code) > maxCountryCode {
			return ""
		}
		return code
	})
	out.People = catalog.People{
		Actors:    people(movie["actor"]),
		Directors: people(movie["director"]),
	}
	return out
}
