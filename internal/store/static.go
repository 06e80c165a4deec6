package store

import "context"

// StaticUnitOracle 回報固定的 active 單位數；單位名冊不在本服務時使用
type StaticUnitOracle int

// ActiveUnitCount 回傳設定的單位數
func (n StaticUnitOracle) ActiveUnitCount(context.Context) (int, error) {
	return int(n), nil
}
