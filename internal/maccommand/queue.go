package maccommand

import (
	"github.com/brocaar/lorawan"
	log "github.com/sirupsen/logrus"
)

// FOptsMaxLen is the FOpts byte budget of one uplink frame.
const FOptsMaxLen = 15

// QueueItem is one queued uplink answer. Sticky answers are repeated in
// every uplink until a downlink is received after the answer went out at
// least once.
type QueueItem struct {
	CID     lorawan.CID
	Payload lorawan.MACCommandPayload
	Sticky  bool

	sent bool
}

// Queue is the FIFO of uplink MAC answers maintained between downlink
// processing and the next uplinks.
type Queue struct {
	items []QueueItem
}

// Add appends an answer. A queued answer with the same CID is replaced so
// repeated requests collapse to the latest answer.
func (q *Queue) Add(item QueueItem) {
	for i := range q.items {
		if q.items[i].CID == item.CID {
			q.items[i] = item
			return
		}
	}
	q.items = append(q.items, item)
	log.WithFields(log.Fields{
		"cid":    item.CID,
		"sticky": item.Sticky,
	}).Debug("maccommand: answer queued")
}

// Uplink returns the commands to piggy-back on the next uplink, respecting
// the FOpts byte budget. Items that do not fit stay queued for the next
// frame.
func (q *Queue) Uplink() []lorawan.MACCommand {
	var out []lorawan.MACCommand
	var used int

	for i := range q.items {
		cmd := lorawan.MACCommand{CID: q.items[i].CID, Payload: q.items[i].Payload}
		b, err := cmd.MarshalBinary()
		if err != nil {
			log.WithError(err).WithField("cid", cmd.CID).Error("maccommand: marshal queued answer error")
			continue
		}
		if used+len(b) > FOptsMaxLen {
			break
		}
		used += len(b)
		q.items[i].sent = true
		out = append(out, cmd)
	}
	return out
}

// UplinkSent drops the one-shot answers that were included in an uplink.
// Sticky answers stay queued.
func (q *Queue) UplinkSent() {
	kept := q.items[:0]
	for _, it := range q.items {
		if !it.sent || it.Sticky {
			kept = append(kept, it)
		}
	}
	q.items = kept
}

// DownlinkReceived drops the sticky answers that were transmitted at least
// once: a downlink after the answer means the server saw it.
func (q *Queue) DownlinkReceived() {
	kept := q.items[:0]
	for _, it := range q.items {
		if !(it.Sticky && it.sent) {
			kept = append(kept, it)
		}
	}
	q.items = kept
}

// Len returns the number of queued answers.
func (q *Queue) Len() int {
	return len(q.items)
}
