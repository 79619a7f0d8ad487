// Package harness runs resolution scenarios against build models.
//
// A scenario names a CUE build model and states what each dependency edge
// must resolve to. The harness compiles, validates and assembles the model,
// resolves it on an in-memory cache store and compares the outcome with
// the scenario's expectations.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	model: ../models/java        # or source: | <inline CUE>
//	passes: 2                     # resolve twice, expect cache hits
//	edges:
//	  - id: guava
//	    component: com.google.guava:guava:32.0.0
//	    variants: [apiElements]
//	    attribute_matching: true
//	    cache: hit
//	    steps:
//	      - step: shrink
//	        kind: files
//	        files: [failureaccess-1.0.1.jar]
//	  - id: native
//	    failure: no-matching-variant
//	toolchain:
//	  location: /opt/jdk-21
//
// Only the fields an expectation sets are compared. Unknown fields are
// rejected so typos fail loudly.
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory SQLite store, a stepping clock starting
// at testutil.Epoch and sequential resolution ids, so equal models always
// produce equal outcomes. RunWithGolden compares those outcomes as
// canonical JSON with goldie golden files under testdata/golden.
//
// Files are read through viant/afs, so scenarios and models may live on
// any storage afs supports.
package harness
