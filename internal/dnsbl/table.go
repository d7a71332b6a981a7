package dnsbl

// entry is the per-cycle state of one Check.
type entry struct {
	Check
	hit       bool
	actualHit string
}

func (e *entry) toHit(status string) Hit {
	return Hit{
		Domain:    e.Domain,
		Type:      e.Type,
		Data:      e.Data,
		UserData:  e.UserData,
		ActualHit: e.actualHit,
		Listed:    e.hit,
		Status:    status,
	}
}

// table groups the checks of one cycle by domain. Each domain is queried
// once; its entries keep the caller's order.
type table struct {
	domains []string
	byZone  map[string][]*entry
	all     []*entry
}

func newTable(checks []Check) *table {
	t := &table{
		byZone: make(map[string][]*entry),
		all:    make([]*entry, 0, len(checks)),
	}
	for _, c := range checks {
		e := &entry{Check: c}
		if _, ok := t.byZone[c.Domain]; !ok {
			t.domains = append(t.domains, c.Domain)
		}
		t.byZone[c.Domain] = append(t.byZone[c.Domain], e)
		t.all = append(t.all, e)
	}
	return t
}
