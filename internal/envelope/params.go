package envelope

import "strings"

// Param is one key=value pair of a request body.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered request body. The firmware parses the decrypted body
// positionally, so insertion order is kept and values are not escaped.
type Params []Param

// NewParams builds Params from alternating keys and values. A trailing key
// without a value gets an empty value.
func NewParams(kv ...string) Params {
	p := make(Params, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		v := ""
		if i+1 < len(kv) {
			v = kv[i+1]
		}
		p = append(p, Param{Key: kv[i], Value: v})
	}
	return p
}

// Add returns p with key=value appended.
func (p Params) Add(key, value string) Params {
	return append(p, Param{Key: key, Value: value})
}

// Get returns the first value for key.
func (p Params) Get(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Encode renders k1=v1&k2=v2.
func (p Params) Encode() string {
	var sb strings.Builder
	for i, kv := range p {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(kv.Key)
		sb.WriteByte('=')
		sb.WriteString(kv.Value)
	}
	return sb.String()
}
