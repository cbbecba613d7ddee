package replay

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParsePoolAddress validates the address of the on-chain pool to replay.
func ParsePoolAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid pool address: %q", input)
	}
	return common.HexToAddress(input), nil
}

// ParseTopic0Map validates topic0 aliases, keyed by 32-byte hex hash.
func ParseTopic0Map(inputs map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(inputs))
	for topic, name := range inputs {
		topic = strings.TrimSpace(topic)
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic0: %s", topic)
		}
		if len(data) != common.HashLength {
			return nil, fmt.Errorf("invalid topic0 length: %s", topic)
		}
		out[strings.ToLower(topic)] = name
	}
	return out, nil
}
