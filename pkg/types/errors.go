package types

import "errors"

// ErrMissionNotFound 任務紀錄不存在；所有 Mission Record Store 實作都回傳此錯誤
var ErrMissionNotFound = errors.New("mission not found")
