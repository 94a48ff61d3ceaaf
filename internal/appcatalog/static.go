package appcatalog

// popularApps is consulted before the cache and is never overwritten.
var popularApps = map[uint32]string{
	730:     "Counter-Strike 2",
	440:     "Team Fortress 2",
	570:     "Dota 2",
	271590:  "Grand Theft Auto V",
	1172470: "Apex Legends",
	444090:  "Paladins",
	252490:  "Rust",
	4000:    "Garry's Mod",
	550:     "Left 4 Dead 2",
	578080:  "PUBG: BATTLEGROUNDS",
}
