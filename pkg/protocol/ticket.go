package protocol

// Ticket is a helpdesk conversation as reported by the external ticketing
// system. It is read-mostly: this process never mutates remote fields
// directly, only through confirmed actions.
//
// UpdatedAt is the revision marker: an opaque timestamp-like string that
// advances whenever the remote ticket changes. The differ compares markers
// for equality only and never parses them.
type Ticket struct {
	ID            int64             `json:"id"`
	Number        int               `json:"number,omitempty"`
	Subject       string            `json:"subject"`
	Status        string            `json:"status,omitempty"`
	Priority      string            `json:"priority,omitempty"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	Preview       string            `json:"preview,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	CustomFields  map[string]string `json:"custom_fields,omitempty"`
	UpdatedAt     string            `json:"updated_at"`
}

// Clone returns a deep copy of the ticket.
func (t Ticket) Clone() Ticket {
	c := t
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	if t.CustomFields != nil {
		c.CustomFields = make(map[string]string, len(t.CustomFields))
		for k, v := range t.CustomFields {
			c.CustomFields[k] = v
		}
	}
	return c
}
