package bridgehv

import "sync"

// portType mirrors pkg/backend/l2switch.PortType's wire vocabulary.
type portType string

const (
	portAccess portType = "access"
	portDot1Q  portType = "dot1q"
	portQinQ   portType = "qinq"
)

type switchPort struct {
	nio       string
	typ       portType
	vlan      int
	etherType int
}

// ethswitch is a named L2 switch entity (spec §6 "ethsw add_nio",
// "ethsw set_{access,dot1q,qinq}_port", "ethsw rename"). Like bridge, it
// tracks port/VLAN state faithfully but does not forward real frames
// between its ports — see the package doc comment.
type ethswitch struct {
	mu    sync.Mutex
	name  string
	ports map[string]*switchPort // nio name -> port config
}

func newEthswitch(name string) *ethswitch {
	return &ethswitch{name: name, ports: make(map[string]*switchPort)}
}

func (e *ethswitch) addNIO(nioName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.ports[nioName]; !ok {
		e.ports[nioName] = &switchPort{nio: nioName}
	}
}

func (e *ethswitch) setPort(nioName string, typ portType, vlan, etherType int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ports[nioName] = &switchPort{nio: nioName, typ: typ, vlan: vlan, etherType: etherType}
}

func (e *ethswitch) rename(newName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.name = newName
}
