package client

import (
	"context"
	"testing"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/loadbalance"
	"mini-jsonrpc/message"
	"mini-jsonrpc/registry"
)

// ---- Setup 公共函数 ----

func setupServerAndClient(b *testing.B) *Client {
	reg := registry.NewStaticRegistry("Arith")
	startServer(b, reg)

	cli := NewClient("Arith", reg, &loadbalance.RoundRobinBalancer{}, codec.CodecTypeJSON, 8, WithHeartbeat(0))
	b.Cleanup(func() { cli.Close() })
	return cli
}

// 场景1: 单 goroutine 串行调用
func BenchmarkSerialCall(b *testing.B) {
	cli := setupServerAndClient(b)
	ctx := context.Background()

	args := Args{A: 1, B: 2}
	var sum int
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := cli.Call(ctx, "Arith.Add", &sum, args); err != nil {
			b.Fatal(err)
		}
	}
}

// 场景2: 多 goroutine 并发调用（体现多路复用优势）
func BenchmarkConcurrentCall(b *testing.B) {
	cli := setupServerAndClient(b)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		args := Args{A: 1, B: 2}
		var sum int
		for pb.Next() {
			if err := cli.Call(ctx, "Arith.Add", &sum, args); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func benchmarkCodec(b *testing.B, cdc codec.Codec) {
	msg := message.NewRequest(message.Int64ID(1), "Arith.Add", message.Params{Args{A: 1, B: 2}})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, _ := cdc.Encode(msg)
		var out message.Envelope
		cdc.Decode(data, &out)
	}
}

// 场景3: JSON 编解码性能（不走网络，纯 codec）
func BenchmarkCodecJSON(b *testing.B) {
	benchmarkCodec(b, codec.GetCodec(codec.CodecTypeJSON))
}

// 场景4: Binary 编解码性能（不走网络，纯 codec）
func BenchmarkCodecBinary(b *testing.B) {
	benchmarkCodec(b, codec.GetCodec(codec.CodecTypeBinary))
}
