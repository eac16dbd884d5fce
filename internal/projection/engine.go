// Package projection extrapolates a player's resource totals between
// authoritative income updates.
package projection

import "time"

// ReferencePeriod is the span of game time a Resource.Change is quoted over.
const ReferencePeriod = 3 * time.Minute

var referenceSeconds = ReferencePeriod.Seconds()

// Kind identifies one tracked resource.
type Kind int

const (
	Credit Kind = iota
	Technology
	Ideology

	numKinds
)

// Kinds lists every tracked resource in wire order.
var Kinds = [numKinds]Kind{Credit, Technology, Ideology}

// String returns the wire name used in push payloads.
func (k Kind) String() string {
	switch k {
	case Credit:
		return "cred"
	case Technology:
		return "tech"
	case Ideology:
		return "ideo"
	}
	return "unknown"
}

// Resource is a projected total and its rate per ReferencePeriod.
type Resource struct {
	Value  float64 `json:"value"`
	Change float64 `json:"change"`
}

// Income is an authoritative set of resource figures from the host.
type Income struct {
	Credit     Resource
	Technology Resource
	Ideology   Resource
}

func (in Income) byKind() [numKinds]Resource {
	return [numKinds]Resource{in.Credit, in.Technology, in.Ideology}
}

// Resources is a point-in-time copy of all tracked resources.
type Resources struct {
	Cred Resource `json:"cred"`
	Tech Resource `json:"tech"`
	Ideo Resource `json:"ideo"`
}

// Get returns the resource for k.
func (r Resources) Get(k Kind) Resource {
	switch k {
	case Technology:
		return r.Tech
	case Ideology:
		return r.Ideo
	default:
		return r.Cred
	}
}

// Engine holds the latest resource figures and the instant they were last
// normalized to. It is not safe for concurrent use; a single goroutine owns it.
type Engine struct {
	resources   [numKinds]Resource
	lastUpdate  int64
	hasBaseline bool
}

// New returns an engine with no baseline.
func New() *Engine {
	return &Engine{}
}

// HasBaseline reports whether an authoritative update (or an advance) has
// set the projection clock yet.
func (e *Engine) HasBaseline() bool {
	return e.hasBaseline
}

// LastUpdate returns the projection clock in unix seconds.
func (e *Engine) LastUpdate() (int64, bool) {
	return e.lastUpdate, e.hasBaseline
}

// ApplyAuthoritativeUpdate replaces the stored figures with in. Income accrued
// since the previous checkpoint is first settled at the old rates, so a rate
// change never rewrites value that was already earned. The first update only
// establishes the baseline.
func (e *Engine) ApplyAuthoritativeUpdate(in Income, nowSec int64) {
	if !e.hasBaseline {
		e.lastUpdate = nowSec
		e.hasBaseline = true
	} else {
		e.Advance(nowSec)
	}

	e.resources = in.byKind()
	e.lastUpdate = nowSec
}

// Advance moves every total forward to nowSec at its current rate. A
// non-positive elapsed time leaves values untouched. The clock is set to
// nowSec either way.
func (e *Engine) Advance(nowSec int64) {
	elapsed := nowSec - e.lastUpdate
	if e.hasBaseline && elapsed > 0 {
		periods := float64(elapsed) / referenceSeconds
		for i := range e.resources {
			e.resources[i].Value += e.resources[i].Change * periods
		}
	}

	e.lastUpdate = nowSec
	e.hasBaseline = true
}

// Snapshot copies the current projected figures.
func (e *Engine) Snapshot() Resources {
	return Resources{
		Cred: e.resources[Credit],
		Tech: e.resources[Technology],
		Ideo: e.resources[Ideology],
	}
}
