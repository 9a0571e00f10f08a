// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/Xuanwo/go-locale"
	"github.com/vorlif/spreak"
	"golang.org/x/text/language"
)

//go:embed locale/*
var locales embed.FS

// New returns a localizer for the given locale. An empty locale is detected from the
// environment, falling back to English.
func New(loc string) (*spreak.Localizer, error) {
	tag := Language(loc)
	if base, conf := tag.Base(); conf != language.No {
		tag = language.Make(base.String())
	}

	localeFS, err := fs.Sub(locales, "locale")
	if err != nil {
		return nil, fmt.Errorf("failed to load locales: %w", err)
	}

	bundle, err := spreak.NewBundle(
		spreak.WithSourceLanguage(language.English),
		spreak.WithFallbackLanguage(language.English),
		spreak.WithDomainFs("", localeFS),
		spreak.WithLanguage(tag),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create i18n bundle: %w", err)
	}
	return spreak.NewLocalizer(bundle, tag), nil
}

// Language resolves a locale string like "de-DE" or "de_DE.UTF-8" to a language tag.
func Language(loc string) language.Tag {
	if loc == "" {
		tag, err := locale.Detect()
		if err != nil {
			return language.English
		}
		return tag
	}
	tag, err := language.Parse(Normalize(loc))
	if err != nil {
		return language.English
	}
	return tag
}

// Normalize turns a POSIX locale like "de_DE.UTF-8" or "en_US@euro" into a BCP 47 string
// like "de-DE".
func Normalize(loc string) string {
	if idx := strings.IndexAny(loc, ".@"); idx != -1 {
		loc = loc[:idx]
	}
	return strings.ReplaceAll(loc, "_", "-")
}
