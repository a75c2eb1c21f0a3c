// Package proxygen is the compile-time backend of the proxy builder. It emits
// Go source for the proxy of every eligible entity type of a workspace, from
// the same interception plan the runtime registry uses.
//
//	g := proxygen.NewGenerator(ws, "./proxies",
//		proxygen.WithPackage("proxies"),
//		proxygen.WithBaseImport("example.com/shop"),
//	)
//	err := g.Generate(ctx)
//
// Each file declares a <Name>Proxy struct embedding the entity type and a
// *proxy.State, a constructor taking the capability table, and the
// intercepted accessors:
//
//   - Set<Member> for claimed scalars, with change notification and the key
//     equality check
//   - Set<Member> for references and collections, routed through the
//     relationship manager
//   - Get<Member> for lazy-loaded navigation members
//   - BaseGet<Member> and BaseSet<Member> for the unintercepted accessors
package proxygen
