// Package mutate builds bulk-mutation operations against the job
// server's persistent job sets (scheduled, retries, dead).
//
// Operations are constructed fluently and executed through the client:
//
//	op := mutate.For(mutate.Retries).WithType("sync_quickbooks").Kill()
//	err := c.Mutate(ctx, op)
//
// A filter narrows the affected jobs by jobtype, explicit jids, or a
// pattern match on the serialized payload. Clear ignores any filter and
// empties the whole set.
package mutate

// Set identifies a persistent job set on the server.
type Set string

const (
	// Scheduled holds jobs waiting for their at time.
	Scheduled Set = "scheduled"
	// Retries holds failed jobs awaiting another attempt.
	Retries Set = "retries"
	// Dead holds jobs whose retry budget is exhausted.
	Dead Set = "dead"
)

// Mutation commands.
const (
	CmdKill    = "kill"
	CmdDiscard = "discard"
	CmdRequeue = "requeue"
	CmdClear   = "clear"
)

// Operation is the MUTATE wire payload. JSON field names follow the
// protocol and must not change.
type Operation struct {
	Cmd    string  `json:"cmd"`
	Target Set     `json:"target"`
	Filter *Filter `json:"filter,omitempty"`
}

// Filter narrows a mutation to matching jobs. Fields combine with AND
// semantics on the server.
type Filter struct {
	// Jids selects jobs by explicit id.
	Jids []string `json:"jids,omitempty"`

	// Regexp is a server-side pattern match against the serialized
	// job payload, e.g. "*uid:12345*".
	Regexp string `json:"regexp,omitempty"`

	// Jobtype selects jobs of one type.
	Jobtype string `json:"jobtype,omitempty"`
}

// Builder accumulates a target set and filter.
type Builder struct {
	target Set
	filter *Filter
}

// For starts a mutation against the given set.
func For(target Set) *Builder {
	return &Builder{target: target}
}

// WithType filters to jobs of the given jobtype.
func (b *Builder) WithType(jobtype string) *Builder {
	b.ensureFilter().Jobtype = jobtype

	return b
}

// WithJids filters to the given jids.
func (b *Builder) WithJids(jids ...string) *Builder {
	b.ensureFilter().Jids = jids

	return b
}

// Matching filters by a pattern match against the serialized payload.
func (b *Builder) Matching(pattern string) *Builder {
	b.ensureFilter().Regexp = pattern

	return b
}

func (b *Builder) ensureFilter() *Filter {
	if b.filter == nil {
		b.filter = &Filter{}
	}

	return b.filter
}

// Kill moves matching jobs to the dead set.
func (b *Builder) Kill() Operation {
	return Operation{Cmd: CmdKill, Target: b.target, Filter: b.filter}
}

// Discard deletes matching jobs permanently.
func (b *Builder) Discard() Operation {
	return Operation{Cmd: CmdDiscard, Target: b.target, Filter: b.filter}
}

// Requeue moves matching jobs back onto their queues for immediate
// execution.
func (b *Builder) Requeue() Operation {
	return Operation{Cmd: CmdRequeue, Target: b.target, Filter: b.filter}
}

// Clear empties the entire set. Any accumulated filter is ignored, per
// the protocol.
func (b *Builder) Clear() Operation {
	return Operation{Cmd: CmdClear, Target: b.target}
}
