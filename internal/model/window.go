package model

import "time"

// WindowContains 判断 t 是否落在左闭右开区间 [start, end) 内，end 为 nil 表示没有结束时间。
func WindowContains(start time.Time, end *time.Time, t time.Time) bool {
	if t.Before(start) {
		return false
	}
	return end == nil || t.Before(*end)
}

// WindowsOverlap 判断两个左闭右开区间是否相交。
func WindowsOverlap(aStart time.Time, aEnd *time.Time, bStart time.Time, bEnd *time.Time) bool {
	if aEnd != nil && !aEnd.After(bStart) {
		return false
	}
	if bEnd != nil && !bEnd.After(aStart) {
		return false
	}
	return true
}

// TimePtr returns a pointer to a copy of t.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string {
	return &s
}
