package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Đảo Hải Tặc":          "dao-hai-tac",
		"  Spider-Man: No Way ": "spider-man-no-way",
		"Tom & Jerry!!":        "tom-jerry",
		"":                     "",
		"---":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), "input %q", in)
	}
}

func TestTitleKeyIgnoresCaseDiacriticsAndPunctuation(t *testing.T) {
	assert.Equal(t, TitleKey("Người Nhện: Không Còn Nhà"), TitleKey("nguoi nhen khong con nha"))
	assert.Equal(t, "spidermannowayhome", TitleKey("Spider-Man: No Way Home"))
	assert.Equal(t, "", TitleKey("!!!"))
}

func TestChecksumIsStable(t *testing.T) {
	a := Checksum("https://cdn.example.com/1.m3u8")
	assert.Len(t, a, 64)
	assert.Equal(t, a, Checksum("https://cdn.example.com/1.m3u8"))
	assert.NotEqual(t, a, Checksum("https://cdn.example.com/2.m3u8"))
}

func TestMovieCounts(t *testing.T) {
	m := &Movie{
		Genres:    []Taxonomy{{Name: "Action"}},
		Countries: []Taxonomy{{Name: "Japan", Code: "JP"}},
		People:    People{Actors: []Person{{Name: "A"}, {Name: "B"}}, Directors: []Person{{Name: "D"}}},
		Seasons: []Season{
			{Number: 1, Episodes: []Episode{
				{Number: 1, Streams: []Stream{{URL: "a"}, {URL: "b"}}},
				{Number: 2, Streams: []Stream{{URL: "c"}}},
			}},
		},
	}
	assert.Equal(t, 2, m.EpisodeCount())
	assert.Equal(t, 3, m.StreamCount())
	assert.Equal(t, 2, m.TaxonomyCount())
	assert.Equal(t, 3, m.People.Len())
}

func TestTaxonomyKeyPrefersSlugThenCode(t *testing.T) {
	assert.Equal(t, "hanh-dong", Taxonomy{Name: "Hành Động", Slug: "hanh-dong"}.Key())
	assert.Equal(t, "JP", Taxonomy{Name: "Japan", Code: "JP"}.Key())
	assert.Equal(t, "hanhdong", Taxonomy{Name: "Hành Động"}.Key())
}
