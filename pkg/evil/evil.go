// Package evil reads the legacy side-channel JSON file Mozilla's crash
// infrastructure still emits alongside some minidumps: a map of thread
// names keyed by thread id, plus Authenticode certificate metadata for
// modules, neither of which the minidump format itself carries (§9
// "side-channel (evil JSON)").
package evil

import (
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"os"
	"time"

	"go.mozilla.org/pkcs7"
)

// CertInfo wraps the fields of a module's Authenticode signature this
// core cares about, mirroring the shape a PE security directory parser
// extracts from a pkcs7.PKCS7 structure.
type CertInfo struct {
	Issuer             string
	Subject            string
	NotBefore          time.Time
	NotAfter           time.Time
	SerialNumber       string
	SignatureAlgorithm x509.SignatureAlgorithm
	PublicKeyAlgorithm x509.PublicKeyAlgorithm
}

// Info is the parsed, ready-to-consult form of an evil JSON file.
type Info struct {
	ThreadNames map[uint32]string
	Certs       map[string]CertInfo // keyed by module name
}

// rawDoc mirrors the subset of the legacy JSON schema this core reads;
// the real file carries many more fields (stack traces, OOM
// allocation sizes) this core has no use for and leaves unparsed.
type rawDoc struct {
	ThreadnameMap map[string]string `json:"threadnames"`
	CertSubjects  map[string]string `json:"cert_subject"`
	CertPKCS7     map[string]string `json:"cert_pkcs7"` // module name -> hex-encoded DER PKCS#7 blob
}

// Empty returns a zero-value Info, used whenever options.EvilJSON is
// unset or unreadable — the side channel is pure enrichment (§9).
func Empty() *Info {
	return &Info{ThreadNames: map[uint32]string{}, Certs: map[string]CertInfo{}}
}

// Load reads and parses the evil JSON file at path. Any error
// (missing file, malformed JSON) is the caller's to decide whether to
// treat as fatal; the processor orchestrator treats it as
// degradation-eligible and falls back to Empty().
func Load(path string) (*Info, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc rawDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	info := Empty()
	for idStr, name := range doc.ThreadnameMap {
		id, ok := parseThreadID(idStr)
		if !ok {
			continue
		}
		info.ThreadNames[id] = name
	}
	for module, derHex := range doc.CertPKCS7 {
		der, err := hex.DecodeString(derHex)
		if err != nil {
			continue
		}
		ci, err := parseCertInfo(der)
		if err != nil {
			continue
		}
		info.Certs[module] = ci
	}
	return info, nil
}

func parseThreadID(s string) (uint32, bool) {
	var id uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		id = id*10 + uint64(r-'0')
	}
	if s == "" {
		return 0, false
	}
	return uint32(id), true
}

// parseCertInfo extracts the handful of Authenticode fields this core
// surfaces from a raw PKCS#7 blob, the same fields a PE security
// directory parser pulls out of pkcs7.Parse's result.
func parseCertInfo(der []byte) (CertInfo, error) {
	p7, err := pkcs7.Parse(der)
	if err != nil {
		return CertInfo{}, err
	}
	if len(p7.Signers) == 0 || len(p7.Certificates) == 0 {
		return CertInfo{}, pkcs7.ErrUnsupportedAlgorithm
	}
	serial := p7.Signers[0].IssuerAndSerialNumber.SerialNumber
	for _, cert := range p7.Certificates {
		if cert.SerialNumber.Cmp(serial) != 0 {
			continue
		}
		return CertInfo{
			Issuer:             cert.Issuer.String(),
			Subject:            cert.Subject.String(),
			NotBefore:          cert.NotBefore,
			NotAfter:           cert.NotAfter,
			SerialNumber:       hex.EncodeToString(cert.SerialNumber.Bytes()),
			SignatureAlgorithm: cert.SignatureAlgorithm,
			PublicKeyAlgorithm: cert.PublicKeyAlgorithm,
		}, nil
	}
	return CertInfo{}, pkcs7.ErrUnsupportedAlgorithm
}

// GetName looks up a thread name by id, reporting whether one exists.
func (i *Info) GetName(id uint32) (string, bool) {
	if i == nil {
		return "", false
	}
	name, ok := i.ThreadNames[id]
	return name, ok
}
