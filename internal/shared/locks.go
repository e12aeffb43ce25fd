package shared

import "fmt"

// VoucherSequenceLockKey builds redis keys for the voucher numbering critical section.
func VoucherSequenceLockKey(accountID string, pointOfSale, voucherType int) string {
	return fmt.Sprintf("facturia:voucher-seq:%s:%d:%d", accountID, pointOfSale, voucherType)
}
