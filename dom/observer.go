package dom

import "sync"

// ObserverOptions selects which mutations an observer receives.
type ObserverOptions struct {
	ChildList     bool
	CharacterData bool
	Attributes    bool

	// AttributeFilter restricts Attributes records to the named attributes.
	// Empty means all attributes.
	AttributeFilter []string
}

// Observer receives batched mutation records from a Document.
type Observer struct {
	doc      *Document
	opts     ObserverOptions
	filter   map[string]bool
	callback func([]MutationRecord)

	mu    sync.Mutex
	queue []MutationRecord
}

// Observe registers an observer over the whole document subtree. The
// callback runs on Deliver with all records queued since the last delivery.
func (d *Document) Observe(opts ObserverOptions, callback func([]MutationRecord)) *Observer {
	o := &Observer{
		doc:      d,
		opts:     opts,
		callback: callback,
	}
	if len(opts.AttributeFilter) > 0 {
		o.filter = make(map[string]bool, len(opts.AttributeFilter))
		for _, name := range opts.AttributeFilter {
			o.filter[name] = true
		}
	}

	d.mu.Lock()
	d.observers = append(d.observers, o)
	d.mu.Unlock()
	return o
}

// Disconnect unregisters the observer and discards its queued records.
func (o *Observer) Disconnect() {
	o.doc.mu.Lock()
	for i, other := range o.doc.observers {
		if other == o {
			o.doc.observers = append(o.doc.observers[:i], o.doc.observers[i+1:]...)
			break
		}
	}
	o.doc.mu.Unlock()

	o.mu.Lock()
	o.queue = nil
	o.mu.Unlock()
}

// TakeRecords returns and clears the queued records without invoking the
// callback.
func (o *Observer) TakeRecords() []MutationRecord {
	o.mu.Lock()
	records := o.queue
	o.queue = nil
	o.mu.Unlock()
	return records
}

func (o *Observer) wants(rec MutationRecord) bool {
	switch rec.Kind {
	case ChildList:
		return o.opts.ChildList
	case CharacterData:
		return o.opts.CharacterData
	case Attributes:
		if !o.opts.Attributes {
			return false
		}
		if o.filter != nil {
			return o.filter[rec.AttributeName]
		}
		return true
	}
	return false
}

func (o *Observer) enqueue(rec MutationRecord) {
	o.mu.Lock()
	o.queue = append(o.queue, rec)
	o.mu.Unlock()
}

func (o *Observer) deliver() {
	records := o.TakeRecords()
	if len(records) == 0 || o.callback == nil {
		return
	}
	o.callback(records)
}
