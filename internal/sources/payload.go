package sources

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/JustinTDCT/CineSync/internal/catalog"
	"github.com/JustinTDCT/CineSync/internal/models"
)

// Placeholder the Vietnamese catalogs put in people lists until data arrives.
const peoplePlaceholder = "Đang cập nhật"

const (
	priorityM3U8  = 100
	priorityEmbed = 80
)

var (
	digitsRe   = regexp.MustCompile(`\d+`)
	hoursRe    = regexp.MustCompile(`(\d+)\s*(?:hours?|hrs?|gio|h)(?:[^a-z]|$)`)
	minutesRe  = regexp.MustCompile(`(\d+)\s*(?:minutes?|mins?|phut|m)(?:[^a-z]|$)`)
	episodesRe = regexp.MustCompile(`\((\d+)\s*/\s*(\d+)\)`)
)

// decodePayload returns the top-level object of a raw payload, or an empty
// map when the payload is absent or not an object.
func decodePayload(raw json.RawMessage) map[string]any {
	var root map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &root) != nil || root == nil {
		return map[string]any{}
	}
	return root
}

// movieObject finds the movie record in the shapes the catalogs return:
// {movie: {...}}, {data: {item: {...}}} and {item: {...}}.
func movieObject(root map[string]any) map[string]any {
	if m := obj(root["movie"]); len(m) > 0 {
		return m
	}
	if m := obj(path(root, "data", "item")); len(m) > 0 {
		return m
	}
	if m := obj(root["item"]); len(m) > 0 {
		return m
	}
	return map[string]any{}
}

// episodeList returns the episodes array from the payload root or, for
// wrapped responses, from the movie record itself.
func episodeList(root, movie map[string]any) []any {
	if l := list(root["episodes"]); len(l) > 0 {
		return l
	}
	return list(movie["episodes"])
}

func path(m map[string]any, keys ...string) any {
	var cur any = m
	for _, k := range keys {
		cur = obj(cur)[k]
		if cur == nil {
			return nil
		}
	}
	return cur
}

func obj(v any) map[string]any {
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return nil
	}
	return m
}

func list(v any) []any {
	l, ok := v.([]any)
	if !ok {
		return nil
	}
	return l
}

// str coerces scalars to a trimmed string; objects and arrays yield "".
func str(v any) string {
	switch v.(type) {
	case nil, map[string]any, []any:
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstStr(vals ...any) string {
	for _, v := range vals {
		if s := str(v); s != "" {
			return s
		}
	}
	return ""
}

// number coerces v to a finite float64. Numeric strings are accepted.
func number(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
		if s == "" {
			return 0, false
		}
		v = s
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func intPtr(v any) *int {
	f, ok := number(v)
	if !ok || f > math.MaxInt32 || f < math.MinInt32 {
		return nil
	}
	n := int(f)
	return &n
}

func positiveInt(v any) *int {
	n := intPtr(v)
	if n == nil || *n <= 0 {
		return nil
	}
	return n
}

func int64Ptr(v any) *int64 {
	f, ok := number(v)
	if !ok || f >= math.MaxInt64 || f <= math.MinInt64 {
		return nil
	}
	n := int64(f)
	return &n
}

func floatPtr(v any) *float64 {
	f, ok := number(v)
	if !ok {
		return nil
	}
	return &f
}

// externalID reads an id that may be a plain value or an {id: ...} object.
func externalID(vals ...any) *string {
	for _, v := range vals {
		if m := obj(v); m != nil {
			v = m["id"]
		}
		s := str(v)
		if s != "" && s != "0" {
			return &s
		}
	}
	return nil
}

func mapStatus(v any) models.MovieStatus {
	switch s := catalog.Fold(str(v)); s {
	case "ongoing", "dang chieu", "dang cap nhat":
		return models.MovieStatusOngoing
	case "completed", "full", "hoan tat":
		return models.MovieStatusCompleted
	case "upcoming", "trailer", "sap chieu":
		return models.MovieStatusUpcoming
	default:
		if strings.HasPrefix(s, "hoan tat") {
			return models.MovieStatusCompleted
		}
		return models.MovieStatusUnknown
	}
}

// inferType maps the type field, falling back to episode counts when the
// field is absent or uses another vocabulary ("hoathinh", "tvshows").
func inferType(movie map[string]any, item *models.SourceItem) models.MovieType {
	switch strings.ToLower(str(movie["type"])) {
	case "series", "tvshows", "tv":
		return models.MovieTypeSeries
	case "single", "movie":
		return models.MovieTypeSingle
	}
	if n := totalEpisodes(movie); n > 1 {
		return models.MovieTypeSeries
	}
	if item != nil && item.Type != nil && models.MovieType(*item.Type) == models.MovieTypeSeries {
		return models.MovieTypeSeries
	}
	return models.MovieTypeSingle
}

// totalEpisodes reads episode_total ("12", "12 Tập") or the "(n/total)"
// suffix of episode_current.
func totalEpisodes(movie map[string]any) int {
	if f, ok := number(movie["episode_total"]); ok {
		return int(f)
	}
	if m := digitsRe.FindString(str(movie["episode_total"])); m != "" {
		n, _ := strconv.Atoi(m)
		return n
	}
	if m := episodesRe.FindStringSubmatch(str(movie["episode_current"])); m != nil {
		n, _ := strconv.Atoi(m[2])
		return n
	}
	return 0
}

// parseDuration reads free-text runtimes: "45 phút/tập", "120 Phút",
// "1h 30m", "2 giờ 10 phút". A bare number is minutes.
func parseDuration(v any) *int {
	if n := positiveInt(v); n != nil {
		return n
	}
	s := catalog.Fold(str(v))
	if s == "" {
		return nil
	}
	total := 0
	if m := hoursRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		total += h * 60
	}
	if m := minutesRe.FindStringSubmatch(s); m != nil {
		mins, _ := strconv.Atoi(m[1])
		total += mins
	}
	if total == 0 {
		if m := digitsRe.FindString(s); m != "" {
			total, _ = strconv.Atoi(m)
		}
	}
	if total <= 0 {
		return nil
	}
	return &total
}

func episodeNumberFrom(label string) int {
	if m := digitsRe.FindString(label); m != "" {
		if n, err := strconv.Atoi(m); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

func videoKind(v any, def models.VideoKind) models.VideoKind {
	switch k := models.VideoKind(strings.ToLower(str(v))); k {
	case models.VideoKindEmbed, models.VideoKindHLS, models.VideoKindMP4, models.VideoKindExternal:
		return k
	case "m3u8":
		return models.VideoKindHLS
	}
	return def
}

// stringList accepts an array of strings, a single string or an object of
// strings.
func stringList(v any) []string {
	var out []string
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			if s := str(e); s != "" {
				out = append(out, s)
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s := str(t[k]); s != "" {
				out = append(out, s)
			}
		}
	default:
		if s := str(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func taxonomies(v any, code func(map[string]any) string) []catalog.Taxonomy {
	var out []catalog.Taxonomy
	for _, e := range list(v) {
		m := obj(e)
		if m == nil {
			if name := str(e); name != "" {
				out = append(out, catalog.Taxonomy{Name: name})
			}
			continue
		}
		name := str(m["name"])
		if name == "" {
			continue
		}
		t := catalog.Taxonomy{Name: name}
		if code != nil {
			t.Code = code(m)
		} else {
			t.Slug = str(m["slug"])
		}
		out = append(out, t)
	}
	return out
}

func people(vals ...any) []catalog.Person {
	var out []catalog.Person
	seen := map[string]bool{}
	for _, v := range vals {
		for _, e := range list(v) {
			p := catalog.Person{Name: str(e)}
			if m := obj(e); m != nil {
				p = catalog.Person{
					Name:      str(m["name"]),
					Slug:      str(m["slug"]),
					AvatarURL: str(m["avatar_url"]),
				}
			}
			if p.Name == "" || p.Name == peoplePlaceholder {
				continue
			}
			if seen[p.Key()] {
				continue
			}
			seen[p.Key()] = true
			out = append(out, p)
		}
	}
	return out
}

// seasons builds the season tree from either episode layout:
//
//	[{season, items: [{episode, name, servers: [{name, items: [{type, label, url}]}]}]}]
//	[{server_name, server_data: [{name, filename, link_m3u8, link_embed}]}]
//
// The server-grouped layout has no season numbers and lands in season 1.
func seasons(episodes []any) []catalog.Season {
	if len(episodes) == 0 {
		return nil
	}
	if first := obj(episodes[0]); first != nil {
		if _, ok := first["server_data"]; ok {
			return serverGroupedSeasons(episodes)
		}
		if _, ok := first["server_name"]; ok {
			return serverGroupedSeasons(episodes)
		}
	}
	return explicitSeasons(episodes)
}

func explicitSeasons(raw []any) []catalog.Season {
	var out []catalog.Season
	for idx, s := range raw {
		sm := obj(s)
		if sm == nil {
			continue
		}
		number := idx + 1
		if n := positiveInt(sm["season"]); n != nil {
			number = *n
		} else if n := positiveInt(sm["number"]); n != nil {
			number = *n
		}
		season := catalog.Season{Number: number}
		items := list(sm["items"])
		if items == nil {
			items = list(sm["episodes"])
		}
		for _, e := range items {
			em := obj(e)
			if em == nil {
				continue
			}
			epNum := 1
			if n := positiveInt(em["episode"]); n != nil {
				epNum = *n
			} else if n := positiveInt(em["number"]); n != nil {
				epNum = *n
			}
			name := str(em["name"])
			if name == "" {
				name = "Episode " + strconv.Itoa(epNum)
			}
			season.Episodes = append(season.Episodes, catalog.Episode{
				Number:  epNum,
				Name:    name,
				Streams: explicitStreams(em),
			})
		}
		out = append(out, season)
	}
	return out
}

func explicitStreams(ep map[string]any) []catalog.Stream {
	var out []catalog.Stream
	for _, srv := range list(ep["servers"]) {
		sm := obj(srv)
		serverName := firstStr(sm["name"], "Server")
		for _, st := range list(sm["items"]) {
			if s, ok := explicitStream(obj(st), serverName); ok {
				out = append(out, s)
			}
		}
	}
	for _, st := range list(ep["streams"]) {
		stm := obj(st)
		if s, ok := explicitStream(stm, firstStr(stm["server"], stm["server_name"], "Server")); ok {
			out = append(out, s)
		}
	}
	return out
}

func explicitStream(m map[string]any, serverName string) (catalog.Stream, bool) {
	url := str(m["url"])
	if url == "" {
		return catalog.Stream{}, false
	}
	s := catalog.Stream{
		ServerName: serverName,
		Kind:       videoKind(firstStr(m["type"], m["kind"]), models.VideoKindHLS),
		Label:      firstStr(m["label"], m["name"], "Default"),
		URL:        url,
		Priority:   intPtr(m["priority"]),
	}
	if h := obj(m["headers"]); len(h) > 0 {
		s.Headers = make(map[string]string, len(h))
		for k, v := range h {
			s.Headers[k] = str(v)
		}
	}
	return s, true
}

func serverGroupedSeasons(raw []any) []catalog.Season {
	byNumber := map[int]*catalog.Episode{}
	var order []int
	for _, srv := range raw {
		sm := obj(srv)
		if sm == nil {
			continue
		}
		serverName := firstStr(sm["server_name"], "Server")
		for _, it := range list(sm["server_data"]) {
			im := obj(it)
			if im == nil {
				continue
			}
			name := firstStr(im["name"], im["filename"], "Episode")
			num := episodeNumberFrom(name)
			ep, ok := byNumber[num]
			if !ok {
				ep = &catalog.Episode{Number: num, Name: name}
				byNumber[num] = ep
				order = append(order, num)
			}
			ep.Streams = append(ep.Streams, linkStreams(im, serverName)...)
		}
	}
	if len(order) == 0 {
		return nil
	}
	sort.Ints(order)
	season := catalog.Season{Number: 1}
	for _, n := range order {
		season.Episodes = append(season.Episodes, *byNumber[n])
	}
	return []catalog.Season{season}
}

// linkStreams emits one stream per link kind on a server entry. The hosted
// m3u8 link ranks above the embed player.
func linkStreams(item map[string]any, serverName string) []catalog.Stream {
	var out []catalog.Stream
	if u := str(item["link_m3u8"]); u != "" {
		p := priorityM3U8
		out = append(out, catalog.Stream{ServerName: serverName, Kind: models.VideoKindHLS, Label: "m3u8", URL: u, Priority: &p})
	}
	if u := str(item["link_embed"]); u != "" {
		p := priorityEmbed
		out = append(out, catalog.Stream{ServerName: serverName, Kind: models.VideoKindEmbed, Label: "embed", URL: u, Priority: &p})
	}
	return out
}
