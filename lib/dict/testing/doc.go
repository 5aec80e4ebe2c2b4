// Package testing provides standardized tests and benchmarks for dict type
// configurations.
//
//   - RunDictTests: runs a conformance suite validating the container laws
//     (insert/find/size, replace idempotence, unlink+free vs delete, scan
//     completeness across resizes, fingerprint stability) against any
//     string-keyed type configuration.
//   - RunDictBenchmarks: performance benchmarks for comparing entry
//     layouts and type configurations.
//   - StringType, StringSetType, EmbeddedStringType: the standard type
//     configurations, covering the normal, bare-key and embedded entry
//     layouts.
//
// A test for a custom type configuration is one call:
//
//	func TestMyDict(t *testing.T) {
//		dicttesting.RunDictTests(t, "MyDict", func() *dict.Dict {
//			return dict.New(myType())
//		})
//	}
package testing
