// Package safety decides whether a proposed shell command may run at all,
// and how much ceremony is required before it does.
//
// drift executes commands proposed by a language model, which means every
// string reaching the executor must be assumed adversarial or confused.
// This package centralizes the policy: a hard blocklist of patterns that
// never run under any confirmation path, a high-risk tier requiring strong
// explicit confirmation, a medium tier for unprivileged mutation, and low
// for everything else.
//
// # Threat Model
//
// T1 - Destructive intent: recursive deletion of root or system paths,
// disk formatters, raw device overwrites, fork bombs. Matched by the hard
// blocklist; terminal, no override.
//
// T2 - Remote code execution: curl/wget piped into an interpreter, process
// substitution downloads, inline interpreter eval (-e/-c), base64-decoded
// payloads. Blocked outright; drift never distinguishes a "trusted" source.
//
// T3 - Severity smuggling: a compound command chaining a harmless segment
// with a destructive one (`ls; rm -rf /`). Commands are split on shell
// connectors and every segment is classified independently; the whole
// unsplit string is also matched so connector-spanning patterns (pipe to
// shell) still fire. The final verdict is the maximum over all matches.
//
// T4 - Trivial evasion: repeated whitespace between tokens. Commands are
// whitespace-normalized before matching. No attempt is made to defeat
// deliberate obfuscation beyond the listed patterns; the classifier is a
// pattern gate, not a semantic analyzer.
//
// Rules are data, not code: ordered (id, tier, pattern) tuples. The
// built-in tables can be extended, never shrunk, by a user rules file.
// Classification is strictly ordered and short-circuiting per segment:
// blocklist, then high, then medium, then low.
package safety
