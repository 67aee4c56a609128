package credauth

import (
	"context"
	"testing"
)

func BenchmarkValidateSessionToken(b *testing.B) {
	env := newTestEnv(b, nil)
	env.addCredential(b, "ana@example.com", goodPassword, true)
	res := env.login(b, "ana@example.com", goodPassword)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.engine.ValidateSessionToken(ctx, res.SessionToken); err != nil {
			b.Fatalf("validate failed: %v", err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	env := newTestEnv(b, nil)
	env.addCredential(b, "ana@example.com", goodPassword, true)
	rotation := env.login(b, "ana@example.com", goodPassword).RotationToken
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := env.engine.Refresh(ctx, rotation)
		if err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
		rotation = res.RotationToken
	}
}

func BenchmarkLogin(b *testing.B) {
	env := newTestEnv(b, nil)
	env.addCredential(b, "ana@example.com", goodPassword, true)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := env.engine.Login(ctx, "ana@example.com", goodPassword)
		if err != nil {
			b.Fatalf("login failed: %v", err)
		}
		_ = env.engine.Logout(ctx, res.RotationToken)
	}
}

func BenchmarkMetricsIncParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricLoginSuccess)
		}
	})
}
