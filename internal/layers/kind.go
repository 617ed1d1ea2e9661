package layers

import "strings"

// Kind enumerates the layer types the registry knows about.
// KindUnknown is the typed fallback for any unrecognized type key.
type Kind int

const (
	KindUnknown Kind = iota
	KindInput
	KindOutput
	KindDense
	KindFlatten
	KindDropout
	KindActivation
	KindBatchNormalization
	KindReshape
	KindConv1D
	KindConv2D
	KindMaxPooling2D
	KindAveragePooling2D
	KindGlobalAveragePooling2D
	KindEmbedding
	KindLSTM
	KindGRU
	KindAdd
	KindMultiply
	KindAverage
	KindConcatenate
)

var kindNames = map[Kind]string{
	KindUnknown:                "Unknown",
	KindInput:                  "Input",
	KindOutput:                 "Output",
	KindDense:                  "Dense",
	KindFlatten:                "Flatten",
	KindDropout:                "Dropout",
	KindActivation:             "Activation",
	KindBatchNormalization:     "BatchNormalization",
	KindReshape:                "Reshape",
	KindConv1D:                 "Conv1D",
	KindConv2D:                 "Conv2D",
	KindMaxPooling2D:           "MaxPooling2D",
	KindAveragePooling2D:       "AveragePooling2D",
	KindGlobalAveragePooling2D: "GlobalAveragePooling2D",
	KindEmbedding:              "Embedding",
	KindLSTM:                   "LSTM",
	KindGRU:                    "GRU",
	KindAdd:                    "Add",
	KindMultiply:               "Multiply",
	KindAverage:                "Average",
	KindConcatenate:            "Concatenate",
}

// aliases maps lower-cased alternate spellings used by editors to kinds.
var aliases = map[string]Kind{
	"maxpool2d":     KindMaxPooling2D,
	"avgpool2d":     KindAveragePooling2D,
	"averagepool2d": KindAveragePooling2D,
	"globalavgpool": KindGlobalAveragePooling2D,
	"batchnorm":     KindBatchNormalization,
	"concat":        KindConcatenate,
}

var kindsByLower = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames)+len(aliases))
	for k, name := range kindNames {
		if k == KindUnknown {
			continue
		}
		m[strings.ToLower(name)] = k
	}
	for alias, k := range aliases {
		m[alias] = k
	}
	return m
}()

// ParseKind resolves a node type key, case-insensitively.
// Unrecognized keys return KindUnknown.
func ParseKind(typeName string) Kind {
	key := strings.ToLower(strings.TrimSpace(typeName))
	if k, ok := kindsByLower[key]; ok {
		return k
	}
	return KindUnknown
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}
