package sanitize

import "github.com/hpungsan/feedvault/internal/record"

// ForExport returns the export-safe form of a stored record: text re-cleaned,
// URLs re-validated and media without a valid URL dropped. Records missing
// id or savedAt are skipped (ok is false).
func (s *Sanitizer) ForExport(rec *record.Record) (out *record.Record, ok bool) {
	if rec == nil || rec.ID == "" || rec.SavedAt == "" {
		return nil, false
	}

	out = rec.Clone()
	out.Title = s.cleanText(out.Title, 0)
	out.Text = s.cleanText(out.Text, 0)
	out.URL = s.cleanURL(out.URL)
	out.PostURL = s.cleanURL(out.PostURL)

	out.Author = record.Author{
		Name:       s.cleanText(rec.Author.Name, 0),
		Title:      s.cleanText(rec.Author.Title, 0),
		ProfileURL: s.cleanURL(rec.Author.ProfileURL),
		Avatar:     s.cleanURL(rec.Author.Avatar),
	}

	var media []record.Media
	for _, m := range rec.Media {
		u := s.cleanURL(m.URL)
		if u == "" {
			continue
		}
		media = append(media, record.Media{
			Type:   m.Type,
			URL:    u,
			Alt:    s.cleanText(m.Alt, 0),
			Poster: s.cleanURL(m.Poster),
		})
	}
	out.Media = media

	return out, true
}
