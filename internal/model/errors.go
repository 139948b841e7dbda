// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// パイプラインのエラー分類。errors.Isで判定する。
var (
	// ErrInputUnavailable は記事ソースまたはユーザー名簿の取得失敗。実行全体を中断する。
	ErrInputUnavailable = errors.New("input unavailable")
	// ErrUserProcessing はユーザー単位のフィルタ・重複除外・組み立ての失敗。
	ErrUserProcessing = errors.New("user processing failed")
	// ErrDeliveryFailed は配信コラボレーターが失敗を報告した。
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrLedgerWrite は配信成功後の台帳記録の失敗。
	ErrLedgerWrite = errors.New("ledger write failed")
	// ErrUserNotFound は指定ユーザーが見つからない。
	ErrUserNotFound = errors.New("user not found")
)

// PipelineError はユーザー単位のエラーに分類とユーザーIDを付与する。
type PipelineError struct {
	Kind   error // 上記の分類エラーのいずれか
	UserID string
	Err    error
}

// NewPipelineError はPipelineErrorを生成する。
func NewPipelineError(kind error, userID string, err error) *PipelineError {
	return &PipelineError{Kind: kind, UserID: userID, Err: err}
}

// Error はerrorインターフェースを実装する。
func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] user=%s", e.Kind, e.UserID)
	}
	return fmt.Sprintf("[%s] user=%s: %v", e.Kind, e.UserID, e.Err)
}

// Unwrap は分類エラーと原因エラーの両方をerrors.Isの対象にする。
func (e *PipelineError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
