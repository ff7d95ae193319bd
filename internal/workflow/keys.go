package workflow

import (
	"fmt"
	"strings"
)

// OutputPrefix is prepended to every sorted object key.
const OutputPrefix = "sorted-unsorted/sorted-"

// Output key rule names.
const (
	// RuleFunction matches what the sorting function writes.
	RuleFunction = "function"
	// RuleClient replaces the first ".txt" only, as the old page did.
	RuleClient = "client"
	// RuleIdentity keeps the uploaded name.
	RuleIdentity = "identity"
)

// FunctionOutputKey: names ending in .txt have every .txt replaced with
// .srt, anything else gets .srt appended.
func FunctionOutputKey(name string) string {
	if strings.HasSuffix(name, ".txt") {
		return OutputPrefix + strings.ReplaceAll(name, ".txt", ".srt")
	}
	return OutputPrefix + name + ".srt"
}

// ClientOutputKey replaces the first .txt with .srt and leaves other names alone.
func ClientOutputKey(name string) string {
	return OutputPrefix + strings.Replace(name, ".txt", ".srt", 1)
}

// IdentityOutputKey keeps the uploaded name.
func IdentityOutputKey(name string) string {
	return OutputPrefix + name
}

// OutputKeyFunc resolves a rule name. An empty name selects RuleFunction.
func OutputKeyFunc(rule string) (func(string) string, error) {
	switch rule {
	case "", RuleFunction:
		return FunctionOutputKey, nil
	case RuleClient:
		return ClientOutputKey, nil
	case RuleIdentity:
		return IdentityOutputKey, nil
	default:
		return nil, fmt.Errorf("unknown output key rule %q", rule)
	}
}
