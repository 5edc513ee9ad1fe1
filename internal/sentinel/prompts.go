package sentinel

import "math/rand/v2"

// prompts is the fixed challenge pool. Long pangram-style sentences elicit a
// natural typing rhythm across most of the keyboard.
var prompts = [...]string{
	"The quick brown fox jumps over the lazy dog while seventy wrens argue about the frozen quince jam.",
	"Pack my box with five dozen liquor jugs before the freight train departs from the quiet valley junction.",
	"A wizard quickly jinxed the gnomes before they vaporized the chamber with bright purple flames.",
	"Jovial zookeepers quietly fix the broken exhibit while pandas munch damp bamboo beside the gate.",
	"Grumpy wizards make toxic brew for the evil queen and her jackdaws perched along the frosty wall.",
	"The five boxing wizards jump quickly over a dozen lazy hounds sleeping near the village bakery.",
	"Crazy Fredrick bought many very exquisite opal jewels and hid them beneath the clocktower steps.",
	"Sixty zippers were quickly picked from the woven jute bag by the dexterous traveling merchant.",
	"Amazingly few discotheques provide jukeboxes, yet every dancer hums along to the fading melody.",
	"Jaded zombies acted quaintly but kept driving their oxen forward through the muddy turnip field.",
	"The public was amazed to view the quickness and dexterity of the juggler balancing on a frozen pond.",
	"We promptly judged antique ivory buckles for the next prize while rain drummed on the copper roof.",
	"A mad boxer shot a quick gloved jab to the jaw of his dizzy opponent under the flickering lights.",
	"Whenever the black quartz sphinx judged my vow, the desert wind scattered maps across the dunes.",
	"Fickle jinx bought two dozen very quaint zithers and played them softly on the midnight ferry.",
	"Brawny gods just flocked up to quiz and vex him about the silver coins buried near the old mill.",
	"Quick wafting zephyrs vex bold Jim while he sketches herons gliding over the glassy morning lake.",
	"The job requires extra pluck and zeal from every young wage earner crossing the harbor bridge at dawn.",
	"Five or six big jet planes zoomed quickly past the watchful tower before vanishing into low clouds.",
	"My girl wove six dozen plaid jackets before she quit, folding each one neatly on the cedar bench.",
}

// RandomPrompt returns a uniformly chosen prompt from the fixed pool.
func RandomPrompt() string {
	return prompts[rand.IntN(len(prompts))]
}

// PromptCount returns the size of the challenge pool.
func PromptCount() int {
	return len(prompts)
}
