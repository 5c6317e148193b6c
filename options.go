package daqcore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// BoardDescriptor identifies one physical digitizer board. Immutable after
// construction.
type BoardDescriptor struct {
	Link       int    `mapstructure:"link"`
	Crate      int    `mapstructure:"crate"`
	BoardID    int    `mapstructure:"board_id"`
	TypeTag    string `mapstructure:"type_tag"`
	Host       string `mapstructure:"host"`
	VMEAddress uint32 `mapstructure:"vme_address"`
}

// RegisterSetting is one (register, value) pair to write during arming,
// expressed as hex strings.
type RegisterSetting struct {
	Reg string
	Val string
}

// AsUint32 parses a hex-string register or value field (e.g. "0xEF24").
func (r RegisterSetting) AsUint32() (reg, val uint32, err error) {
	regv, err := parseHex(r.Reg)
	if err != nil {
		return 0, 0, fmt.Errorf("bad register %q: %w", r.Reg, err)
	}
	valv, err := parseHex(r.Val)
	if err != nil {
		return 0, 0, fmt.Errorf("bad value %q: %w", r.Val, err)
	}
	return regv, valv, nil
}

func parseHex(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	return uint32(v), err
}

// DACRow holds the 16-channel slope/yint calibration for one board.
type DACRow struct {
	Slope [16]float64
	Yint  [16]float64
}

// DefaultDACKey is the fallback calibration row used for boards without
// their own entry in the calibration table.
const DefaultDACKey = -1

// OptionStore is the keyed configuration source consumed by the core;
// UpdateDAC is its only writer. It wraps a *viper.Viper so every key can come from a config
// file, environment variable, or flag interchangeably.
type OptionStore struct {
	v        *viper.Viper
	hostname string
}

// NewOptionStore wraps an already-configured viper instance (the CLI sets
// up config file search paths; tests can hand it a viper.New() with
// in-memory defaults).
func NewOptionStore(v *viper.Viper, hostname string) *OptionStore {
	return &OptionStore{v: v, hostname: hostname}
}

// Hostname returns the host this OptionStore was constructed for. Several
// keys (processing_threads.<host>) are namespaced by it.
func (o *OptionStore) Hostname() string { return o.hostname }

// GetInt returns the int at key, or def if unset.
func (o *OptionStore) GetInt(key string, def int) int {
	if !o.v.IsSet(key) {
		return def
	}
	return o.v.GetInt(key)
}

// GetLong returns the int64 at key, or def if unset.
func (o *OptionStore) GetLong(key string, def int64) int64 {
	if !o.v.IsSet(key) {
		return def
	}
	return o.v.GetInt64(key)
}

// GetDouble returns the float64 at key, or def if unset.
func (o *OptionStore) GetDouble(key string, def float64) float64 {
	if !o.v.IsSet(key) {
		return def
	}
	return o.v.GetFloat64(key)
}

// GetString returns the string at key, or def if unset.
func (o *OptionStore) GetString(key string, def string) string {
	if !o.v.IsSet(key) {
		return def
	}
	return o.v.GetString(key)
}

// GetNestedInt reads a dotted key such as "processing_threads.<host>",
// leaning on viper's native nested-key addressing.
func (o *OptionStore) GetNestedInt(key string, def int) int {
	return o.GetInt(key, def)
}

// GetNestedString reads a dotted key the same way GetNestedInt does.
func (o *OptionStore) GetNestedString(key string, def string) string {
	return o.GetString(key, def)
}

// GetBoards returns the board descriptors configured for a given type
// tag and host, unmarshaled from the "boards" key.
func (o *OptionStore) GetBoards(typeTag, host string) ([]BoardDescriptor, error) {
	var all []BoardDescriptor
	if err := o.v.UnmarshalKey("boards", &all); err != nil {
		return nil, errf(KindConfiguration, "GetBoards: %w", err)
	}
	out := make([]BoardDescriptor, 0, len(all))
	for _, b := range all {
		if b.TypeTag == typeTag && b.Host == host {
			out = append(out, b)
		}
	}
	return out, nil
}

// GetRegisters returns the (reg, val) pairs to write to a given board
// during arming, keyed "registers.<board_id>".
func (o *OptionStore) GetRegisters(boardID int) ([]RegisterSetting, error) {
	key := fmt.Sprintf("registers.%d", boardID)
	var regs []RegisterSetting
	if !o.v.IsSet(key) {
		return nil, nil
	}
	if err := o.v.UnmarshalKey(key, &regs); err != nil {
		return nil, errf(KindConfiguration, "GetRegisters(%d): %w", boardID, err)
	}
	return regs, nil
}

// ChannelMap returns the global channel id for (boardID, localChannel), or
// -1 if unmapped. Keyed "channel_map.<board_id>.<local_channel>".
func (o *OptionStore) ChannelMap(boardID, localChannel int) int16 {
	key := fmt.Sprintf("channel_map.%d.%d", boardID, localChannel)
	if !o.v.IsSet(key) {
		return -1
	}
	return int16(o.v.GetInt(key))
}

// DACTable is the in-memory {board_id -> DACRow} calibration table, key
// DefaultDACKey is the fallback row.
type DACTable map[int]DACRow

// GetDACRow returns the calibration row for boardID, falling back to
// DefaultDACKey, or a zero row if neither exists.
func (o *OptionStore) GetDACRow(boardID int) DACRow {
	tbl := o.dacTable()
	if row, ok := tbl[boardID]; ok {
		return row
	}
	if row, ok := tbl[DefaultDACKey]; ok {
		return row
	}
	return DACRow{}
}

func (o *OptionStore) dacTable() DACTable {
	tbl := make(DACTable)
	raw := o.v.GetStringMap("dac_calibration")
	for k, v := range raw {
		id, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		m, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		var row DACRow
		if s, ok := m["slope"].([]interface{}); ok {
			for i := 0; i < 16 && i < len(s); i++ {
				row.Slope[i], _ = toFloat(s[i])
			}
		}
		if y, ok := m["yint"].([]interface{}); ok {
			for i := 0; i < 16 && i < len(y); i++ {
				row.Yint[i], _ = toFloat(y[i])
			}
		}
		tbl[id] = row
	}
	return tbl
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

// UpdateDAC persists the calibration table built during a "fit" baseline
// run so future arms can use baseline_dac_mode=cached.
func (o *OptionStore) UpdateDAC(table DACTable) {
	out := make(map[string]interface{}, len(table))
	for id, row := range table {
		slope := make([]interface{}, len(row.Slope))
		yint := make([]interface{}, len(row.Yint))
		for i := range row.Slope {
			slope[i], yint[i] = row.Slope[i], row.Yint[i]
		}
		out[strconv.Itoa(id)] = map[string]interface{}{
			"slope": slope,
			"yint":  yint,
		}
	}
	o.v.Set("dac_calibration", out)
}
