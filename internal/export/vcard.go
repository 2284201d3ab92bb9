package export

import (
	"io"
	"strings"

	"github.com/MeKo-Tech/cardex/internal/extract"
	"github.com/MeKo-Tech/cardex/internal/pipeline"
)

var vcardEscaper = strings.NewReplacer(
	`\`, `\\`,
	",", `\,`,
	";", `\;`,
	"\r\n", `\n`,
	"\n", `\n`,
)

func escapeVCard(s string) string { return vcardEscaper.Replace(strings.TrimSpace(s)) }

// VCard renders rec as a vCard 3.0 entry with CRLF line endings.
func VCard(rec *extract.ContactRecord) string {
	lines := []string{"BEGIN:VCARD", "VERSION:3.0"}
	add := func(prop, field string) {
		if v := strings.TrimSpace(rec.Value(field)); v != "" {
			lines = append(lines, prop+":"+escapeVCard(v))
		}
	}

	name := strings.TrimSpace(rec.Value(extract.FieldName))
	fn := name
	if fn == "" {
		fn = strings.TrimSpace(rec.Value(extract.FieldCompany))
	}
	// FN is required by RFC 2426.
	lines = append(lines, "FN:"+escapeVCard(fn))
	if name != "" {
		parts := strings.Fields(name)
		if len(parts) > 1 {
			last := parts[len(parts)-1]
			first := strings.Join(parts[:len(parts)-1], " ")
			lines = append(lines, "N:"+escapeVCard(last)+";"+escapeVCard(first)+";;;")
		} else {
			lines = append(lines, "N:"+escapeVCard(name)+";;;;")
		}
	}

	org := rec.Value(extract.FieldCompany)
	if dept := strings.TrimSpace(rec.Value(extract.FieldDepartment)); dept != "" && strings.TrimSpace(org) != "" {
		lines = append(lines, "ORG:"+escapeVCard(org)+";"+escapeVCard(dept))
	} else {
		add("ORG", extract.FieldCompany)
	}
	add("TITLE", extract.FieldTitle)
	add("EMAIL", extract.FieldEmail)
	add("TEL;TYPE=WORK", extract.FieldPhone)
	add("TEL;TYPE=CELL", extract.FieldMobile)
	add("URL", extract.FieldWebsite)
	if addr := strings.TrimSpace(rec.Value(extract.FieldAddress)); addr != "" {
		lines = append(lines, "ADR;TYPE=WORK:;;"+escapeVCard(addr)+";;;;")
	}

	var notes []string
	for _, f := range []string{extract.FieldNotes, extract.FieldUniversity, extract.FieldSocialMedia, extract.FieldOther} {
		if v := strings.TrimSpace(rec.Value(f)); v != "" {
			notes = append(notes, v)
		}
	}
	if len(notes) > 0 {
		lines = append(lines, "NOTE:"+escapeVCard(strings.Join(notes, "\n")))
	}

	lines = append(lines, "END:VCARD")
	return strings.Join(lines, "\r\n") + "\r\n"
}

// WriteVCard writes one vCard per result. Failed results without any field
// are skipped.
func WriteVCard(w io.Writer, results []*pipeline.Result) error {
	for _, r := range results {
		if r == nil || len(r.Record.Extracted()) == 0 {
			continue
		}
		if _, err := io.WriteString(w, VCard(r.Record)); err != nil {
			return err
		}
	}
	return nil
}
