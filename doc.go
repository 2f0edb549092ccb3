// Package guardcache implements a provider-agnostic cache that prevents cache
// stampedes: when a value is missing, one caller computes it while every other
// caller for the same key waits and then reads the fresh value.
//
// Components:
//   - Provider: byte store with TTL (e.g. Ristretto, BigCache, Redis).
//   - Codec[V]: (de)serializes V <-> []byte.
//   - FlagStore: "computation in progress" flags per key. Local (in-process) by
//     default; Redis or Postgres when several replicas share one cache.
//
// Keys:
//
//	val:<ns>:<key>  - cached values (provider)
//	<ns>:<key>      - in-progress flags (flag store, exact match)
//
// Write protocol:
//
//	create flag -> write value -> release flag
//
// Readers poll the flag store every PollInterval while a flag is present, so a
// read that started during a write observes the written value. Waits are bounded
// by MaxWait, and flags older than StaleAfter are force-cleared so a crashed writer
// cannot block a key forever.
//
// Compute once:
//
//	v, err := cache.RememberForever(ctx, "report:2024", func(ctx context.Context) (Report, error) {
//	    return buildReport(ctx)
//	})
package guardcache
