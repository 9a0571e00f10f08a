// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vorlif/spreak/localize"

	"github.com/wneessen/geowatch/internal/geobus"
	"github.com/wneessen/geowatch/internal/geohash"
	"github.com/wneessen/geowatch/internal/logger"
	"github.com/wneessen/geowatch/internal/pipeline"
	"github.com/wneessen/geowatch/internal/template"
	"github.com/wneessen/geowatch/internal/vartype"
)

const (
	OutputClass = "geowatch"

	ClassMoved     = "moved"
	ClassUnchanged = "unchanged"
	ClassError     = "error"
	ClassStopped   = "stopped"
	ClassWaiting   = "waiting"

	IconPosition = "📍"
	IconError    = "⚠"
	IconStopped  = "⏸"
	IconWaiting  = "⌛"
)

// Source error messages as they are shown to the user.
var sourceErrorMessages = map[error]localize.MsgID{
	geobus.ErrPermissionDenied:    "User denied Geolocation access request.",
	geobus.ErrPositionUnavailable: "Location Information unavailable.",
	geobus.ErrTimeout:             "Get user location request timed out.",
	geobus.ErrUnknown:             "An unknown error occurred.",
}

const (
	msgStopped localize.MsgID = "Monitoring ended."
	msgWaiting localize.MsgID = "Waiting for position..."
)

// StatusContext is the data the text and tooltip templates are rendered with.
type StatusContext struct {
	Latitude    float64
	Longitude   float64
	Timestamp   time.Time
	Fingerprint string
	Source      string
	// CellLatitude and CellLongitude are the center of the fingerprint cell.
	CellLatitude  float64
	CellLongitude float64
	Accuracy      vartype.VarFloat64
	CellWidth     float64
	CellHeight    float64
	SessionID     string
	Moved         bool
	Icon          string
}

// MapView is a map that can be recentered.
type MapView interface {
	SetView(lat, lon float64, zoom int)
}

// Sink receives rendered status lines.
type Sink interface {
	WriteStatus(Output) error
}

// Output is a single status line.
type Output struct {
	Text     string    `json:"text"`
	Tooltip  string    `json:"tooltip"`
	Classes  []string  `json:"class"`
	Recenter *Recenter `json:"recenter,omitempty"`
}

// Recenter is the view a map was moved to along with a status line.
type Recenter struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Zoom      int     `json:"zoom"`
}

// Presenter turns monitoring results into status lines and map movements. It is safe for
// concurrent use.
type Presenter struct {
	templates *template.Templates
	sink      Sink
	mapView   MapView
	zoom      int
	logger    *logger.Logger

	mu   sync.Mutex
	last Output
}

// New returns a Presenter writing to sink and recentering mapView with the given zoom level.
func New(tpls *template.Templates, sink Sink, mapView MapView, zoom int, log *logger.Logger) (*Presenter, error) {
	if tpls == nil {
		return nil, errors.New("templates are required")
	}
	if sink == nil {
		return nil, errors.New("status sink is required")
	}
	p := &Presenter{
		templates: tpls,
		sink:      sink,
		mapView:   mapView,
		zoom:      zoom,
		logger:    log,
	}
	p.last = p.messageOutput(IconWaiting, msgWaiting, ClassWaiting)
	return p, nil
}

// BuildContext creates the template context for an accepted decision.
func (p *Presenter) BuildContext(sessionID string, decision pipeline.Decision) StatusContext {
	ctx := StatusContext{
		Latitude:    decision.Sample.Lat,
		Longitude:   decision.Sample.Lon,
		Timestamp:   decision.Sample.Timestamp,
		Fingerprint: decision.Fingerprint,
		Source:      decision.Sample.Source,
		Accuracy:    decision.Sample.Accuracy,
		SessionID:   sessionID,
		Moved:       decision.Recenter(),
		Icon:        IconPosition,
	}
	ctx.CellWidth, ctx.CellHeight = geohash.CellSize(len(decision.Fingerprint))
	if lat, lon, _, _, err := geohash.Decode(decision.Fingerprint); err == nil {
		ctx.CellLatitude, ctx.CellLongitude = lat, lon
	}
	return ctx
}

// Render executes the text and tooltip templates.
func (p *Presenter) Render(ctx StatusContext) (Output, error) {
	textBuf := bytes.NewBuffer(nil)
	if err := p.templates.Text.Execute(textBuf, ctx); err != nil {
		return Output{}, fmt.Errorf("failed to render text template: %w", err)
	}
	tooltipBuf := bytes.NewBuffer(nil)
	if err := p.templates.Tooltip.Execute(tooltipBuf, ctx); err != nil {
		return Output{}, fmt.Errorf("failed to render tooltip template: %w", err)
	}

	class := ClassUnchanged
	if ctx.Moved {
		class = ClassMoved
	}
	return Output{
		Text:    textBuf.String(),
		Tooltip: tooltipBuf.String(),
		Classes: []string{OutputClass, class},
	}, nil
}

// HandleDecision presents an accepted decision and recenters the map if the position moved to
// another cell. Dropped decisions are ignored.
func (p *Presenter) HandleDecision(sessionID string, decision pipeline.Decision) {
	if !decision.Accepted() {
		return
	}

	out, err := p.Render(p.BuildContext(sessionID, decision))
	if err != nil {
		p.logger.Error("failed to render status", logger.Err(err))
		return
	}

	// the movement must reach the sink together with the status line it belongs to
	p.mu.Lock()
	defer p.mu.Unlock()
	if decision.Recenter() && p.mapView != nil {
		p.mapView.SetView(decision.Sample.Lat, decision.Sample.Lon, p.zoom)
	}
	p.writeLocked(out)
}

// HandleSourceError presents the localized message of a source failure.
func (p *Presenter) HandleSourceError(_ string, err *geobus.SourceError) {
	p.write(p.messageOutput(IconError, SourceErrorMessage(err), ClassError))
}

// HandleStopped presents the end of a monitoring session.
func (p *Presenter) HandleStopped(string) {
	p.write(p.messageOutput(IconStopped, msgStopped, ClassStopped))
}

// Reprint writes the last status line again without its map movement.
func (p *Presenter) Reprint() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeLocked(p.last)
}

// Last returns the last status line.
func (p *Presenter) Last() Output {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// SourceErrorMessage returns the untranslated user message for a source failure.
func SourceErrorMessage(err *geobus.SourceError) localize.MsgID {
	kind := geobus.ErrUnknown
	if err != nil && err.Kind != nil {
		kind = err.Kind
	}
	if msg, ok := sourceErrorMessages[kind]; ok {
		return msg
	}
	return sourceErrorMessages[geobus.ErrUnknown]
}

func (p *Presenter) messageOutput(icon string, msg localize.MsgID, class string) Output {
	text := p.templates.Localize(msg)
	return Output{
		Text:    template.IconWithSpace(icon) + text,
		Tooltip: text,
		Classes: []string{OutputClass, class},
	}
}

func (p *Presenter) write(out Output) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeLocked(out)
}

// writeLocked requires p.mu to be held.
func (p *Presenter) writeLocked(out Output) {
	p.last = out
	if err := p.sink.WriteStatus(out); err != nil {
		p.logger.Error("failed to write status", logger.Err(err))
	}
}
