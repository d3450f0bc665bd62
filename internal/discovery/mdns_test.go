package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryToServer(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       "kitchen._shoplist._tcp.local.",
		AddrV4:     net.ParseIP("192.168.1.50"),
		Port:       8765,
		InfoFields: []string{"v=1", "doc=globals/state"},
	}

	srv := entryToServer(entry)
	require.NotNil(t, srv)
	assert.Equal(t, "192.168.1.50:8765", srv.Addr())
	assert.Equal(t, "globals/state", srv.Document)
}

func TestEntryToServerSkipsUnusableEntries(t *testing.T) {
	assert.Nil(t, entryToServer(nil))
	assert.Nil(t, entryToServer(&mdns.ServiceEntry{Port: 8765}))
	assert.Nil(t, entryToServer(&mdns.ServiceEntry{AddrV4: net.ParseIP("10.0.0.2")}))
}
