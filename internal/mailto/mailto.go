// Package mailto builds the mailto: links used for contact requests and
// grant consultations. The site has no mail backend; the visitor's mail
// client sends the message.
package mailto

import (
	"alsolved/internal/models"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingEmail   = errors.New("mailto: email obbligatoria")
	ErrInvalidEmail   = errors.New("mailto: email non valida")
	ErrMissingMessage = errors.New("mailto: messaggio obbligatorio")
)

// Build returns mailto:addr?subject=...&body=... with both values
// percent-encoded like encodeURIComponent (spaces become %20, newlines %0A).
func Build(addr, subject, body string) string {
	return "mailto:" + addr + "?subject=" + Escape(subject) + "&body=" + Escape(body)
}

// Escape percent-encodes every byte outside A-Z a-z 0-9 and -_.!~*'().
func Escape(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&15])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}

// ContactForm is the general contact request of the Contatti page.
type ContactForm struct {
	Azienda   string
	Email     string
	Settore   string
	Messaggio string
}

// Normalize trims every field.
func (f ContactForm) Normalize() ContactForm {
	f.Azienda = strings.TrimSpace(f.Azienda)
	f.Email = strings.TrimSpace(f.Email)
	f.Settore = strings.TrimSpace(f.Settore)
	f.Messaggio = strings.TrimSpace(f.Messaggio)
	return f
}

// Validate requires an email containing "@" and a message.
func (f ContactForm) Validate() error {
	f = f.Normalize()
	var errs []error
	switch {
	case f.Email == "":
		errs = append(errs, ErrMissingEmail)
	case !strings.Contains(f.Email, "@") || strings.HasPrefix(f.Email, "@") || strings.HasSuffix(f.Email, "@"):
		errs = append(errs, ErrInvalidEmail)
	}
	if f.Messaggio == "" {
		errs = append(errs, ErrMissingMessage)
	}
	return errors.Join(errs...)
}

func (f ContactForm) Subject() string {
	az := f.Azienda
	if az == "" {
		az = "Nuovo contatto"
	}
	return "Richiesta consulenza da " + az
}

func (f ContactForm) Body() string {
	settore := f.Settore
	if settore == "" {
		settore = "Non specificato"
	}
	return fmt.Sprintf("Azienda: %s\nEmail: %s\nSettore: %s\n\nMessaggio:\n%s", f.Azienda, f.Email, settore, f.Messaggio)
}

// URI returns the mailto link addressed to addr.
func (f ContactForm) URI(addr string) string {
	f = f.Normalize()
	return Build(addr, f.Subject(), f.Body())
}

// Consultation returns the link requesting advice on one grant. The record
// title (not the summarized one) and id are quoted in the message.
func Consultation(addr string, g models.GrantRecord) string {
	subject := "Richiesta Consulenza: " + g.Title
	body := fmt.Sprintf("Buongiorno,\n\nSono interessato al bando \"%s\" (ID: %s).\n\nVorrei richiedere una consulenza per verificare i requisiti e l'iter di partecipazione.\n\nGrazie.", g.Title, g.ID)
	return Build(addr, subject, body)
}
