// Package checkin はQRチェックインのドメインロジックを提供する。
package checkin

import (
	"fmt"
	"strings"

	"github.com/hitoshi/slotman/internal/model"
)

// qrScheme はチェックイン用QRコードのURIスキーム。
const qrScheme = "slotman://checkin/"

// ParseQRPayload はQRコードのペイロードから施設コードを抽出する。
// 形式: slotman://checkin/<施設コード>
func ParseQRPayload(value string) (string, error) {
	if !strings.HasPrefix(value, qrScheme) {
		return "", model.NewInvalidQRCodeError()
	}
	venue := strings.TrimPrefix(value, qrScheme)
	venue = strings.TrimSuffix(venue, "/")
	if venue == "" || strings.Contains(venue, "/") {
		return "", model.NewInvalidQRCodeError()
	}
	return venue, nil
}

// QRPayload は施設コードからQRコードのペイロードを組み立てる。
func QRPayload(venueCode string) string {
	return qrScheme + venueCode
}

// ResolveReason はスロットが選択された理由を表す。
type ResolveReason string

const (
	// ReasonCurrent は現在進行中のスロットとして選択された。
	ReasonCurrent ResolveReason = "current"
	// ReasonUpcoming は本日の次のスロットとして選択された。
	ReasonUpcoming ResolveReason = "upcoming"
)

// CandidateSlot は解決対象のスロットと参考値としての占有スナップショット。
// スナップショットはロック外で読み取られた値であり、判定の参考にのみ使用する。
// 正式な定員判定はロック保持下のAttendanceSessionが行う。
type CandidateSlot struct {
	Slot           model.TimeSlot
	CurrentCount   int
	AvailableSpots int
}

// ResolvedSlot はスロット解決の結果。
type ResolvedSlot struct {
	Slot   model.TimeSlot
	Reason ResolveReason
}

// ResolveSlot は利用者がチェックインすべきスロットを決定する純粋関数。
//
// 判定順序:
//  1. 利用制限（性別・所属区分）を満たすスロットに絞り込む。
//     1件も残らない場合はNO_ELIGIBLE_SLOT。
//  2. 現在時刻を含むスロットがあれば開始時刻が最も早いものを選択する。
//     進行中スロットの占有スナップショットは無視する。満員かどうかの
//     正式な判定はロック下で行われ、満員ならCAPACITY_EXCEEDEDとして
//     利用者に提示される。
//  3. 進行中スロットがない場合は、本日のこれから始まるスロットのうち
//     スナップショット上で空きがある最も早いものを選択する。
//  4. どちらも存在しない場合はNO_SLOT_AVAILABLE。
//
// candidatesは有効かつ本日適用されるスロットに事前に絞り込まれている前提。
func ResolveSlot(candidates []CandidateSlot, user *model.User, nowMinutes int) (*ResolvedSlot, error) {
	eligible := make([]CandidateSlot, 0, len(candidates))
	for _, c := range candidates {
		if c.Slot.Admits(user.Gender, user.Role) {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return nil, model.NewNoEligibleSlotError()
	}

	var current *CandidateSlot
	for i := range eligible {
		c := &eligible[i]
		if !c.Slot.Contains(nowMinutes) {
			continue
		}
		if current == nil || c.Slot.StartMinutes < current.Slot.StartMinutes {
			current = c
		}
	}
	if current != nil {
		return &ResolvedSlot{Slot: current.Slot, Reason: ReasonCurrent}, nil
	}

	var upcoming *CandidateSlot
	for i := range eligible {
		c := &eligible[i]
		if c.Slot.StartMinutes <= nowMinutes || c.AvailableSpots <= 0 {
			continue
		}
		if upcoming == nil || c.Slot.StartMinutes < upcoming.Slot.StartMinutes {
			upcoming = c
		}
	}
	if upcoming != nil {
		return &ResolvedSlot{Slot: upcoming.Slot, Reason: ReasonUpcoming}, nil
	}

	return nil, model.NewNoSlotAvailableError()
}

// SessionKey は(スロット, 営業日)に対応するロックキーを返す。
func SessionKey(timeSlotID, sessionDate string) string {
	return fmt.Sprintf("session:%s:%s", timeSlotID, sessionDate)
}
