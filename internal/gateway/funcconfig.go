package gateway

import (
	"encoding/json"
	"fmt"
	"os"
)

// MethodSpec names one gRPC method exposed for a function, and the
// method_id carried on the wire.
type MethodSpec struct {
	Name string `json:"name"`
	ID   uint16 `json:"id"`
}

// FuncSpec describes one registered function: its wire func_id, the
// HTTP path segment it answers on (func_config_file's "name"), and
// (for the gRPC surface) the set of methods it exposes.
type FuncSpec struct {
	Name    string       `json:"name"`
	ID      uint16       `json:"id"`
	Methods []MethodSpec `json:"methods,omitempty"`
}

// ResolveMethod looks up a method by name on this function, used by
// the gRPC server to build a FuncCall for a given service method.
func (f *FuncSpec) ResolveMethod(name string) (uint16, bool) {
	for _, m := range f.Methods {
		if m.Name == name {
			return m.ID, true
		}
	}
	return 0, false
}

// FuncConfig is the parsed form of func_config_file: the set of
// functions the gateway knows how to route to, indexed both by name
// (HTTP path resolution) and by id (gRPC/dispatcher bookkeeping).
type FuncConfig struct {
	byName map[string]*FuncSpec
	byID   map[uint16]*FuncSpec
}

// LoadFuncConfig reads and parses the JSON function config file named
// by path: a top-level array of FuncSpec objects.
func LoadFuncConfig(path string) (*FuncConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gateway: read func config: %w", err)
	}
	var specs []FuncSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("gateway: parse func config: %w", err)
	}
	return NewFuncConfig(specs), nil
}

// NewFuncConfig builds a FuncConfig from an in-memory spec list,
// primarily for tests.
func NewFuncConfig(specs []FuncSpec) *FuncConfig {
	c := &FuncConfig{byName: make(map[string]*FuncSpec), byID: make(map[uint16]*FuncSpec)}
	for i := range specs {
		spec := specs[i]
		c.byName[spec.Name] = &spec
		c.byID[spec.ID] = &spec
	}
	return c
}

// Resolve looks up a function by its HTTP-path/gRPC-service name.
func (c *FuncConfig) Resolve(name string) (*FuncSpec, bool) {
	spec, ok := c.byName[name]
	return spec, ok
}

// ByID looks up a function by its wire func_id.
func (c *FuncConfig) ByID(id uint16) (*FuncSpec, bool) {
	spec, ok := c.byID[id]
	return spec, ok
}

// Specs returns every configured function, in no particular order.
func (c *FuncConfig) Specs() []*FuncSpec {
	specs := make([]*FuncSpec, 0, len(c.byID))
	for _, spec := range c.byID {
		specs = append(specs, spec)
	}
	return specs
}
