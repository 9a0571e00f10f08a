// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/spreak"

	"github.com/wneessen/geowatch/internal/config"
	"github.com/wneessen/geowatch/internal/vartype"
)

// iconColumns is the number of terminal columns an icon and its trailing space occupy.
const iconColumns = 3

type Templates struct {
	Text      *template.Template
	Tooltip   *template.Template
	localizer *spreak.Localizer
	humanizer *humanize.Humanizer
}

func New(conf *config.Config, loc *spreak.Localizer) (*Templates, error) {
	collection, err := humanize.New(humanize.WithLocale(de.New()))
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer: %w", err)
	}
	tpls := &Templates{
		localizer: loc,
		humanizer: collection.CreateHumanizer(loc.Language()),
	}

	tpl, err := template.New("text").Funcs(tpls.templateFuncMap()).Parse(conf.Templates.Text)
	if err != nil {
		return tpls, fmt.Errorf("failed to parse text template: %w", err)
	}
	tpls.Text = tpl

	tpl, err = template.New("tooltip").Funcs(tpls.templateFuncMap()).Parse(conf.Templates.Tooltip)
	if err != nil {
		return tpls, fmt.Errorf("failed to parse tooltip template: %w", err)
	}
	tpls.Tooltip = tpl

	return tpls, nil
}

// Localize translates a message into the language of the templates.
func (t *Templates) Localize(msg string) string {
	return t.localizer.Get(msg)
}

// LocalizedDateTime formats a timestamp as date and time in the language of the templates.
func (t *Templates) LocalizedDateTime(val time.Time) string {
	return t.humanizer.FormatTime(val, humanize.DateTimeFormat)
}

func (t *Templates) templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"timeFormat":        timeFormat,
		"floatFormat":       floatFormat,
		"localizedTime":     t.localizedTime,
		"localizedDateTime": t.LocalizedDateTime,
		"meters":            meters,
		"iconWithSpace":     IconWithSpace,
		"loc":               t.Localize,
		"lc":                strings.ToLower,
		"uc":                strings.ToUpper,
	}
}

func (t *Templates) localizedTime(val time.Time) string {
	return t.humanizer.FormatTime(val, humanize.TimeFormat)
}

func timeFormat(val time.Time, fmt string) string {
	return val.Format(fmt)
}

func floatFormat(val float64, precision int) string {
	return fmt.Sprintf("%.*f", precision, val)
}

// meters renders a distance or an optional accuracy radius in meters.
func meters(val any) string {
	switch v := val.(type) {
	case float64:
		return formatMeters(v)
	case vartype.VarFloat64:
		if !v.IsSet() {
			return v.String()
		}
		return formatMeters(v.Value())
	default:
		return fmt.Sprint(val)
	}
}

func formatMeters(val float64) string {
	if val >= 1000 {
		return fmt.Sprintf("%.1f km", val/1000)
	}
	return fmt.Sprintf("%.0f m", val)
}

// IconWithSpace pads an icon so that the text following it starts at the same column,
// regardless of whether the icon renders one or two columns wide.
func IconWithSpace(icon string) string {
	if icon == "" {
		return ""
	}
	pad := iconColumns - runewidth.StringWidth(icon)
	if pad < 1 {
		pad = 1
	}
	return icon + strings.Repeat(" ", pad)
}
