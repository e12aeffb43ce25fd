package sequencer

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

func BenchmarkReserveRelease(b *testing.B) {
	seq := New(NewMemoryLocker(), nil, zerolog.Nop())
	key := Key{AccountID: "20123456789", PointOfSale: 1, VoucherType: 11}
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r, err := seq.Reserve(ctx, key)
		if err != nil {
			b.Fatal(err)
		}
		r.Release()
	}
}

func BenchmarkReserveContended(b *testing.B) {
	for _, keys := range []int{1, 16} {
		b.Run(fmt.Sprintf("keys=%d", keys), func(b *testing.B) {
			seq := New(NewMemoryLocker(), nil, zerolog.Nop())
			ctx := context.Background()
			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					key := Key{AccountID: "20123456789", PointOfSale: 1 + i%keys, VoucherType: 11}
					i++
					r, err := seq.Reserve(ctx, key)
					if err != nil {
						b.Error(err)
						return
					}
					r.Release()
				}
			})
		})
	}
}
