package market

import "strings"

// SubFlags is the set of realtime data kinds subscribed for a symbol.
type SubFlags uint8

const (
	SubQuote   SubFlags = 1 << iota // quote pushes
	SubDepth                        // order book
	SubBrokers                      // broker queue
	SubTrade                        // ticks
)

// SubAll covers every realtime data kind.
const SubAll = SubQuote | SubDepth | SubBrokers | SubTrade

// wire sub_type values, in flag bit order
var wireSubTypes = [...]struct {
	flag SubFlags
	wire int32
	name string
}{
	{SubQuote, 1, "quote"},
	{SubDepth, 2, "depth"},
	{SubBrokers, 3, "brokers"},
	{SubTrade, 4, "trade"},
}

func (f SubFlags) Has(o SubFlags) bool { return f&o == o }

func (f SubFlags) Empty() bool { return f == 0 }

// SubTypes renders the flags as wire sub_type values.
func (f SubFlags) SubTypes() []int32 {
	var out []int32
	for _, st := range wireSubTypes {
		if f&st.flag != 0 {
			out = append(out, st.wire)
		}
	}
	return out
}

// FlagsFromSubTypes converts wire sub_type values; unknown values are ignored.
func FlagsFromSubTypes(types []int32) SubFlags {
	var f SubFlags
	for _, t := range types {
		for _, st := range wireSubTypes {
			if st.wire == t {
				f |= st.flag
			}
		}
	}
	return f
}

// ParseSubFlags accepts a comma separated list like "quote,depth".
func ParseSubFlags(s string) (SubFlags, bool) {
	var f SubFlags
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		found := false
		for _, st := range wireSubTypes {
			if st.name == part {
				f |= st.flag
				found = true
			}
		}
		if !found {
			return 0, false
		}
	}
	return f, true
}

func (f SubFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, st := range wireSubTypes {
		if f&st.flag != 0 {
			parts = append(parts, st.name)
		}
	}
	return strings.Join(parts, "|")
}
