package mcprelay

import (
	"encoding/json"
	"fmt"

	"github.com/viant/mcprelay/session"
)

// Options defines options for configuring a relay.
type Options struct {
	Name            string `yaml:"name,omitempty" json:"name,omitempty" short:"n" long:"name" description:"client name announced to upstream servers"`
	Version         string `yaml:"version,omitempty" json:"version,omitempty" long:"client-version" description:"client version announced to upstream servers"`
	ProtocolVersion string `yaml:"protocol,omitempty" json:"protocol,omitempty" short:"p" long:"protocol" description:"mcp protocol version"`
	Config          string `yaml:"config" json:"config" short:"c" long:"config" description:"relay config URL" required:"true"`
	Listener        string `yaml:"listener,omitempty" json:"listener,omitempty" short:"l" long:"listener" description:"listener name" default:"default"`
	Target          string `yaml:"target,omitempty" json:"target,omitempty" short:"t" long:"target" description:"target name"`
	Call            string `yaml:"call,omitempty" json:"call,omitempty" short:"x" long:"call" description:"tool to call on the target"`
	Args            string `yaml:"args,omitempty" json:"args,omitempty" short:"a" long:"args" description:"tool arguments as a JSON object"`
	Debug           bool   `yaml:"debug,omitempty" json:"debug,omitempty" short:"d" long:"debug" description:"enable debug logging"`
}

// Init applies defaults.
func (o *Options) Init() {
	if o.Name == "" {
		o.Name = "mcprelay"
		o.Version = "0.1"
	}
	if o.Listener == "" {
		o.Listener = "default"
	}
}

// Validate checks flag combinations.
func (o *Options) Validate() error {
	if o.Config == "" {
		return fmt.Errorf("config was empty")
	}
	if o.Call != "" && o.Target == "" {
		return fmt.Errorf("target is required to call %v", o.Call)
	}
	if o.Args != "" && o.Call == "" {
		return fmt.Errorf("args require a tool to call")
	}
	return nil
}

// Arguments decodes Args.
func (o *Options) Arguments() (map[string]interface{}, error) {
	ret := map[string]interface{}{}
	if o.Args == "" {
		return ret, nil
	}
	if err := json.Unmarshal([]byte(o.Args), &ret); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return ret, nil
}

// SessionOptions builds the session options for upstream sessions.
func (o *Options) SessionOptions() []session.Option {
	var result []session.Option
	if o.Name != "" {
		result = append(result, session.WithClientInfo(o.Name, o.Version))
	}
	if o.ProtocolVersion != "" {
		result = append(result, session.WithProtocolVersion(o.ProtocolVersion))
	}
	return result
}
