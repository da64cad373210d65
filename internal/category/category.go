package category

// Category is the closed set of usage categories shown to the user.
type Category string

const (
	SocialMedia  Category = "Social Media"
	Gaming       Category = "Gaming"
	Streaming    Category = "Streaming"
	Creative     Category = "Creative"
	News         Category = "News"
	Productivity Category = "Productivity"
	Other        Category = "Other"
)

// Hint is a platform-supplied category hint. It is consulted only when the
// package has no entry in the priority table.
type Hint int

const (
	HintNone Hint = iota
	HintGame
	HintAudio
	HintVideo
	HintImage
	HintSocial
	HintNews
	HintMaps
	HintProductivity
)

// priorityTable maps well-known package identifiers to categories. Entries here
// win over any platform hint: platform-assigned categories for messaging,
// short-video and major game titles are often generic or absent.
var priorityTable = map[string]Category{
	// Social media and messaging
	"com.instagram.android":      SocialMedia,
	"com.zhiliaoapp.musically":   SocialMedia, // TikTok
	"com.ss.android.ugc.trill":   SocialMedia, // TikTok
	"com.google.android.youtube": SocialMedia,
	"com.twitter.android":        SocialMedia,
	"com.twitter.android.lite":   SocialMedia,
	"com.snapchat.android":       SocialMedia,
	"com.facebook.katana":        SocialMedia,
	"com.facebook.lite":          SocialMedia,
	"com.reddit.frontpage":       SocialMedia,
	"com.whatsapp":               SocialMedia,
	"org.telegram.messenger":     SocialMedia,

	// Gaming
	"com.tencent.ig":                      Gaming, // PUBG Mobile
	"com.pubg.imobile":                    Gaming, // BGMI
	"com.activision.callofduty.shooter":   Gaming, // COD Mobile
	"com.dts.freefireth":                  Gaming, // Free Fire
	"com.dts.freefiremax":                 Gaming, // Free Fire
	"com.supercell.clashofclans":          Gaming,
	"com.miHoYo.GenshinImpact":            Gaming,
	"com.innersloth.spacemafia":           Gaming, // Among Us
	"com.roblox.client":                   Gaming,
	"com.mojang.minecraftpe":              Gaming,
	"com.supercell.clashroyale":           Gaming,
	"com.kiloo.subwaysurf":                Gaming,
	"com.king.candycrushsaga":             Gaming,
	"com.epicgames.fortnite":              Gaming,

	// Streaming
	"com.netflix.mediaclient":            Streaming,
	"com.amazon.avod.thirdpartyclient":   Streaming,
	"com.disney.disneyplus":              Streaming,
	"com.spotify.music":                  Streaming,
	"tv.twitch.android.app":              Streaming,
	"com.hulu.plus":                      Streaming,
	"com.hbo.hbonow":                     Streaming,

	// Productivity
	"com.google.android.apps.docs":                Productivity,
	"com.google.android.apps.docs.editors.docs":   Productivity,
	"com.google.android.apps.docs.editors.sheets": Productivity,
	"com.microsoft.office.word":                   Productivity,
	"com.microsoft.office.excel":                  Productivity,
	"com.microsoft.teams":                         Productivity,
	"com.slack":                                   Productivity,
	"com.notion.id":                               Productivity,
	"com.todoist":                                 Productivity,
	"com.duolingo":                                Productivity,
	"com.linkedin.android":                        Productivity,
}

// hintTable maps platform hints to categories.
var hintTable = map[Hint]Category{
	HintGame:         Gaming,
	HintAudio:        Streaming,
	HintVideo:        Streaming,
	HintImage:        Creative,
	HintSocial:       SocialMedia,
	HintNews:         News,
	HintMaps:         Productivity,
	HintProductivity: Productivity,
}

// Classify maps a package identifier and optional platform hint to a Category.
// It is total over any string input: the priority table wins, then the hint
// table, then Other.
func Classify(pkg string, hint Hint) Category {
	if c, ok := priorityTable[pkg]; ok {
		return c
	}
	if c, ok := hintTable[hint]; ok {
		return c
	}
	return Other
}
