// ============================================================================
// Mission Planner 資源估算器 - 粗略的人力、載具、裝備與時程估算
// ============================================================================
//
// Package: internal/estimator
// 文件: estimator.go
// 功能: 依任務類型與排程推算資源需求，所有函式皆為純函式
//
// 估算規則:
//   人員 = 10 × 類型係數（整數除法）
//   載具 = max(1, 人員/5)
//   裝備 = 人員 × 2
//   時數 = 起訖時間都存在時取整數小時（向零截斷），否則取類型預設值
//
// 每張靜態表都以空字串鍵作為明確的預設項目。
//
// ============================================================================

package estimator

import (
	"github.com/ChuLiYu/mission-planner/pkg/types"
)

// BasePersonnel 套用類型係數前的基礎人數
const BasePersonnel = 10

// ratio 以整數除法相乘：n * num / den
type ratio struct {
	num, den int
}

func (r ratio) apply(n int) int {
	return n * r.num / r.den
}

// 空的 MissionType 鍵是每張表的預設項目
var (
	personnelFactors = map[types.MissionType]ratio{
		types.TypeAssault:         {3, 1},
		types.TypeDefense:         {2, 1},
		types.TypeSearchAndRescue: {2, 1},
		types.TypeReconnaissance:  {1, 2},
		types.TypeLogistics:       {1, 1},
		"":                        {1, 1},
	}

	defaultDurationHours = map[types.MissionType]int{
		types.TypeReconnaissance:  8,
		types.TypePatrol:          12,
		types.TypeAssault:         6,
		types.TypeDefense:         24,
		types.TypeLogistics:       4,
		types.TypeSearchAndRescue: 16,
		"":                        8,
	}

	equipmentByType = map[types.MissionType]map[string]int{
		types.TypeReconnaissance: {
			"surveillance_equipment": 5,
			"communication_devices":  10,
			"vehicles":               2,
		},
		types.TypeAssault: {
			"weapons":         20,
			"ammunition":      1000,
			"protective_gear": 15,
			"vehicles":        5,
		},
		types.TypeLogistics: {
			"transport_vehicles": 10,
			"fuel":               5000,
			"supplies":           2000,
		},
		"": {
			"standard_equipment":    10,
			"communication_devices": 5,
			"vehicles":              3,
		},
	}
)

// lookup 回傳 t 的項目，沒有時回傳預設項目
func lookup[V any](table map[types.MissionType]V, t types.MissionType) V {
	if v, ok := table[t]; ok {
		return v
	}
	return table[""]
}

// Personnel 估算人數
func Personnel(m *types.Mission) int {
	return lookup(personnelFactors, m.Type).apply(BasePersonnel)
}

// Vehicles 每五人一輛，至少一輛
func Vehicles(m *types.Mission) int {
	return max(1, Personnel(m)/5)
}

// Equipment 每人兩件裝備
func Equipment(m *types.Mission) int {
	return Personnel(m) * 2
}

// DurationHours 起訖時間都存在時回傳整數小時，否則回傳類型預設時數
func DurationHours(m *types.Mission) int {
	if m.StartTime != nil && m.EndTime != nil {
		return int(m.EndTime.Sub(*m.StartTime).Hours())
	}
	return lookup(defaultDurationHours, m.Type)
}

// EquipmentFor 回傳該類型裝備清單的副本
func EquipmentFor(t types.MissionType) map[string]int {
	src := lookup(equipmentByType, t)
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Estimate 規劃會話初始化時寫入的估算值
type Estimate struct {
	Personnel     int
	Vehicles      int
	Equipment     int
	DurationHours int
}

// For 一次算出任務的所有估算值
func For(m *types.Mission) Estimate {
	return Estimate{
		Personnel:     Personnel(m),
		Vehicles:      Vehicles(m),
		Equipment:     Equipment(m),
		DurationHours: DurationHours(m),
	}
}
