// Package cohort provides balanced, idempotent assignment of study participants
// to scenarios and trial sequences over a single-node optimistic store.
//
// Cohort coordinates any number of request handlers, in any number of
// processes, purely through per-node compare-and-set transactions. There are
// no in-process locks that span participants and no leader.
//
// # Quick Start
//
// Basic usage with default settings:
//
//	import "github.com/arloliu/cohort"
//
//	kv, err := store.OpenKV(ctx, natsConn, "cohort", 5*time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cfg := cohort.DefaultConfig()
//	src := source.NewStaticIDs("s1", "s2", "s3", "s4")
//	eng, err := cohort.NewEngine(&cfg, kv, src)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	pid, _ := eng.CreateParticipant(ctx)
//	a, err := eng.Assign(ctx, pid, 0)
//
// # Key Features
//
//   - Balanced allocation: scenarios and task orders go to the least-used candidate, ties broken at random
//   - Design generation: OA-32 (strength 2) and 4^4 full factorial condition sets, generated lazily and idempotently
//   - Cycles: each scenario hands out contiguous blocks of a shuffled, replicated full factorial
//   - Entropy guard: bounds how often the same trial set recurs within a scenario
//   - Idempotence: a participant's record is created once; replays perform no writes
//
// # Architecture
//
// An Assign call flows through:
//
//	read record → complete? return
//	           → strategy.Select (balanced counter)
//	           → cycle block and/or entropy-guarded draw
//	           → materialize condition payloads + comparison trials
//	           → write record and results mirror
//
// Store layout:
//
//	/catalog/scenarios                         scenario catalog
//	/catalog/scenarios/{sid}/conditions/{d}    generated condition set
//	/metrics/scenario_counts                   balanced scenario counter
//	/metrics/cycle_block_counts                least-cycle-progress counter
//	/metrics/task_order_counts                 balanced task-order counter
//	/cycles/{sid}                              cycle state
//	/orders/{sid}                              order registry
//	/assignments/{pid}                         assignment record
//	/results/{pid}/assigned                    assignment mirror
//
// # Advanced Usage
//
// Entropy-guarded trial selection with hooks:
//
//	cfg := cohort.DefaultConfig()
//	cfg.Assignment.TrialMode = cohort.TrialModeEntropy
//	cfg.Assignment.TrialCount = 16
//
//	hooks := &cohort.Hooks{
//	    OnGuardBypassed: func(ctx context.Context, scenario string, ids []string) error {
//	        log.Printf("entropy floor unreachable for %s", scenario)
//	        return nil
//	    },
//	}
//
//	eng, err := cohort.NewEngine(&cfg, kv, src, cohort.WithHooks(hooks))
//
// See cmd/cohort for a complete command-line front end.
package cohort
