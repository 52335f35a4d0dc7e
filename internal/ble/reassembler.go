package ble

import (
	"sort"

	"pcapscope/internal/models"
)

// context is the state of one fragment run.
type context struct {
	key       string
	fragments []*Fragment
	sequence  []uint8
	declared  int
	running   int
}

// validSequence reports whether the PB flags read start, continue, ...
func (c *context) validSequence() bool {
	if len(c.sequence) == 0 || c.sequence[0] != PBStart {
		return false
	}
	for _, pb := range c.sequence[1:] {
		if pb != PBContinue {
			return false
		}
	}
	return true
}

func (c *context) members() []int {
	ids := make([]int, 0, len(c.fragments))
	for _, f := range c.fragments {
		ids = append(ids, f.PacketID)
	}
	sort.Ints(ids)
	return ids
}

// Completion is a fully reassembled L2CAP message.
type Completion struct {
	Key       string
	ChannelID uint16
	Members   []int
	Payload   []byte
	Checksums models.Checksums
}

// Pending describes a run that never completed.
type Pending struct {
	Key     string
	Members []int
}

// Reassembler holds the open fragment runs of one parse. It is not safe
// for concurrent use.
type Reassembler struct {
	open      map[string]*context
	abandoned []*context
}

// NewReassembler creates an empty reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{open: make(map[string]*context)}
}

// Add feeds one fragment. It returns a completion when the fragment
// finishes a multi-packet message. A message that fits in one packet
// closes its run without a completion.
func (r *Reassembler) Add(f *Fragment) *Completion {
	ctx, ok := r.open[f.Key]
	switch {
	case f.PB == PBStart:
		if ok {
			r.abandoned = append(r.abandoned, ctx)
		}
		ctx = &context{key: f.Key}
		r.open[f.Key] = ctx
	case !ok:
		ctx = &context{key: f.Key}
		r.open[f.Key] = ctx
	}

	ctx.fragments = append(ctx.fragments, f)
	ctx.sequence = append(ctx.sequence, f.PB)
	ctx.running += len(f.Payload)
	if ctx.declared == 0 && f.HasHeader {
		ctx.declared = f.Declared
	}

	if !r.complete(ctx, f) {
		return nil
	}
	delete(r.open, ctx.key)
	if len(ctx.fragments) < 2 {
		return nil
	}
	return assemble(ctx)
}

func (r *Reassembler) complete(ctx *context, last *Fragment) bool {
	if !ctx.validSequence() {
		return false
	}
	if ctx.declared > 0 && ctx.running >= ctx.declared {
		return true
	}
	return !last.MoreData
}

func assemble(ctx *context) *Completion {
	frags := make([]*Fragment, len(ctx.fragments))
	copy(frags, ctx.fragments)
	sort.SliceStable(frags, func(i, j int) bool { return frags[i].PacketID < frags[j].PacketID })

	payload := make([]byte, 0, ctx.running)
	var cid uint16
	for _, f := range frags {
		payload = append(payload, f.Payload...)
		if cid == 0 && f.HasHeader {
			cid = f.ChannelID
		}
	}
	return &Completion{
		Key:       ctx.key,
		ChannelID: cid,
		Members:   ctx.members(),
		Payload:   payload,
		Checksums: Checksums(payload),
	}
}

// Pending lists every run that was replaced or is still open, ordered by
// its first member.
func (r *Reassembler) Pending() []Pending {
	var out []Pending
	for _, ctx := range r.abandoned {
		out = append(out, Pending{Key: ctx.key, Members: ctx.members()})
	}
	for _, ctx := range r.open {
		out = append(out, Pending{Key: ctx.key, Members: ctx.members()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Members[0] < out[j].Members[0] })
	return out
}
