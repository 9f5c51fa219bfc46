package exposure

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/polisai/polis-expose/pkg/discovery"
)

// Report is a serialisable summary of a plan.
type Report struct {
	Policy     Policy            `yaml:"policy"`
	Discovery  discovery.Mode    `yaml:"discovery"`
	Topology   string            `yaml:"topology"`
	Interfaces []InterfaceReport `yaml:"interfaces"`
}

// InterfaceReport describes one planned interface.
type InterfaceReport struct {
	Name           Interface `yaml:"name"`
	Address        string    `yaml:"address"`
	Encrypted      bool      `yaml:"encrypted"`
	MutualTLS      bool      `yaml:"mutual_tls,omitempty"`
	MinTLSVersion  string    `yaml:"min_tls_version,omitempty"`
	Ciphers        string    `yaml:"ciphers,omitempty"`
	RequestTimeout string    `yaml:"request_timeout"`
	HeadersTimeout string    `yaml:"headers_timeout"`
}

// NewReport summarises ifaces. TLS details are only known for servers
// created by DryRunTransport.
func NewReport(policy Policy, mode discovery.Mode, ifaces NetworkInterfaces) Report {
	report := Report{Policy: policy, Discovery: mode}

	_, external := ifaces.External()
	_, local := ifaces.Local()
	report.Topology = Topology{External: external, Local: local}.Name()

	for _, name := range ifaces.Ordered() {
		plan := ifaces[name]
		entry := InterfaceReport{
			Name:           name,
			Address:        plan.Address(),
			Encrypted:      plan.Server.Encrypted(),
			RequestTimeout: plan.Server.RequestTimeout().String(),
			HeadersTimeout: plan.Server.HeadersTimeout().String(),
		}
		if dry, ok := plan.Server.(*DryRunServer); ok && dry.TLS != nil {
			entry.MutualTLS = dry.TLS.RequestCert
			entry.MinTLSVersion = dry.TLS.MinVersion
			entry.Ciphers = dry.TLS.Ciphers
		}
		report.Interfaces = append(report.Interfaces, entry)
	}

	return report
}

// WriteYAML encodes the report to w.
func (r Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}
