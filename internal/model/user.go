// Package model はドメインモデルを定義する。
package model

import (
	"strconv"
	"time"
)

// UserInfo はユーザースイートのトップに表示するアカウント情報を表す。
// データベース上のアカウント行とディレクトリ属性を合成したもの。
type UserInfo struct {
	ID       int64
	Login    string
	Name     string
	Status   string
	Address  string
	IP       string
	MAC      string
	Hostname string
	Mail     string
}

// Checksum はユーザーIDのチェックサム（各桁の和のmod 10）を返す。
// 振込時の本人確認に使われる。
func (u UserInfo) Checksum() int {
	return UserIDChecksum(u.ID)
}

// UserIDChecksum はユーザーIDの各桁の和を10で割った余りを返す。
func UserIDChecksum(id int64) int {
	if id < 0 {
		id = -id
	}
	sum := 0
	for _, c := range strconv.FormatInt(id, 10) {
		sum += int(c - '0')
	}
	return sum % 10
}

// Credit はユーザーの現在のクレジット（残り通信量）を表す。単位はMiB。
type Credit struct {
	Amount float64
	Max    float64
}

// Percent はゲージ表示用にクレジットの割合（0〜100）を返す。
func (c Credit) Percent() float64 {
	if c.Max <= 0 {
		return 0
	}
	p := c.Amount / c.Max * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// TrafficDay は1日分の通信量を表す。単位はMiB。
type TrafficDay struct {
	Date   time.Time
	Input  float64
	Output float64
	Credit float64
}

// TrafficData は直近の日別通信量と現在のクレジットをまとめたもの。
type TrafficData struct {
	Days   []TrafficDay
	Credit float64
}

// Total は期間内の入出力合計を返す。
func (t TrafficData) Total() (input, output float64) {
	for _, d := range t.Days {
		input += d.Input
		output += d.Output
	}
	return input, output
}

// Flash はセッションに積まれる一度きりの通知メッセージ。
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// フラッシュメッセージのカテゴリ。
const (
	FlashSuccess = "success"
	FlashInfo    = "info"
	FlashWarning = "warning"
	FlashError   = "error"
	FlashMessage = "message"
)

// NewsItem はトップページに表示するお知らせ1件を表す。
type NewsItem struct {
	Title     string
	Link      string
	Summary   string
	Published time.Time
}

// DirectoryEntry はディレクトリサービス上のユーザーエントリを表す。
type DirectoryEntry struct {
	DN   string
	UID  string
	Name string
	Mail string
}
