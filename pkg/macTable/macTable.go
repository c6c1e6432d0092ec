// Package macTable implements the per switch address to port learning table.
//
// The table is advisory. It is updated from the source address of every frame
// the controller sees and is never verified. Entries never expire; a stale
// port is corrected the next time the address is seen.
package macTable

import (
	"net"
	"sort"

	"github.com/patrickmn/go-cache"
)

// Entry is one learned address
type Entry struct {
	MacAddr string `json:"macAddr"`
	Port    uint32 `json:"port"`
}

// Table maps an address to the port it was last seen on.
// Reads are safe while the owning engine writes.
type Table struct {
	entries *cache.Cache
}

// NewTable creates an empty table
func NewTable() *Table {
	return &Table{
		entries: cache.New(cache.NoExpiration, 0),
	}
}

func tableKey(addr net.HardwareAddr) string {
	return addr.String()
}

// Record upserts the port for an address
func (t *Table) Record(addr net.HardwareAddr, port uint32) {
	t.entries.Set(tableKey(addr), port, cache.NoExpiration)
}

// Lookup returns the last port addr was seen on
func (t *Table) Lookup(addr net.HardwareAddr) (uint32, bool) {
	val, found := t.entries.Get(tableKey(addr))
	if !found {
		return 0, false
	}

	return val.(uint32), true
}

// Len returns the number of learned addresses
func (t *Table) Len() int {
	return t.entries.ItemCount()
}

// Entries returns a snapshot of the table sorted by address
func (t *Table) Entries() []Entry {
	items := t.entries.Items()

	list := make([]Entry, 0, len(items))
	for mac, item := range items {
		list = append(list, Entry{MacAddr: mac, Port: item.Object.(uint32)})
	}

	sort.Slice(list, func(i, j int) bool { return list[i].MacAddr < list[j].MacAddr })

	return list
}
